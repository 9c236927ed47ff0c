// Package config loads process configuration from an optional YAML file
// and TELEGOOGLE_* environment variables, and converts it into the option
// lists of the individual components.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shaxb/tele-google/ai"
	"github.com/shaxb/tele-google/deal"
	"github.com/shaxb/tele-google/ingestion"
	"github.com/shaxb/tele-google/notify"
	"github.com/shaxb/tele-google/search"
	"github.com/shaxb/tele-google/source/webpreview"
	"github.com/shaxb/tele-google/storage/postgres"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// EnvPrefix is the prefix of environment overrides, e.g. TELEGOOGLE_AI_API_KEY.
const EnvPrefix = "TELEGOOGLE"

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	AI       AIConfig       `yaml:"ai" mapstructure:"ai"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Deal     DealConfig     `yaml:"deal" mapstructure:"deal"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Preview  PreviewConfig  `yaml:"preview" mapstructure:"preview"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the listing store backend.
type StoreConfig struct {
	Driver      string              `yaml:"driver" mapstructure:"driver"` // badger or postgres
	Path        string              `yaml:"path" mapstructure:"path"`
	DatabaseURL string              `yaml:"database_url" mapstructure:"database_url"`
	Pool        postgres.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AIConfig configures the embedding and classification services.
type AIConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	EmbeddingHost   string        `yaml:"embedding_host" mapstructure:"embedding_host"`
	ClassifierHost  string        `yaml:"classifier_host" mapstructure:"classifier_host"`
	EmbeddingModel  string        `yaml:"embedding_model" mapstructure:"embedding_model"`
	ClassifierModel string        `yaml:"classifier_model" mapstructure:"classifier_model"`
	APIKey          string        `yaml:"api_key" mapstructure:"api_key"`
	MinConfidence   float64       `yaml:"min_confidence" mapstructure:"min_confidence"`
	MaxRetries      int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// RegistryConfig selects where the monitored sources are listed.
type RegistryConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // file or sqlite
	Path   string `yaml:"path" mapstructure:"path"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// PipelineConfig tunes ingestion.
type PipelineConfig struct {
	PoolSize          int           `yaml:"pool_size" mapstructure:"pool_size"`
	QueueSize         int           `yaml:"queue_size" mapstructure:"queue_size"`
	CallTimeout       time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" mapstructure:"reconcile_interval"`
	BackfillDelay     time.Duration `yaml:"backfill_delay" mapstructure:"backfill_delay"`
	SourcePause       time.Duration `yaml:"source_pause" mapstructure:"source_pause"`
	AuthCooldown      time.Duration `yaml:"auth_cooldown" mapstructure:"auth_cooldown"`
}

// SearchConfig tunes the retrieval engine.
type SearchConfig struct {
	Candidates          int           `yaml:"candidates" mapstructure:"candidates"`
	ValuationCandidates int           `yaml:"valuation_candidates" mapstructure:"valuation_candidates"`
	ValuationThreshold  float64       `yaml:"valuation_threshold" mapstructure:"valuation_threshold"`
	MinSamples          int           `yaml:"min_samples" mapstructure:"min_samples"`
	CallTimeout         time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// DealConfig tunes the deal evaluator.
type DealConfig struct {
	Neighbors           int     `yaml:"neighbors" mapstructure:"neighbors"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MinNeighbors        int     `yaml:"min_neighbors" mapstructure:"min_neighbors"`
	DealThreshold       float64 `yaml:"deal_threshold" mapstructure:"deal_threshold"`
	OverpricedThreshold float64 `yaml:"overpriced_threshold" mapstructure:"overpriced_threshold"`
}

// NotifyConfig configures the event sink. Without a bot token and chat ID
// or a webhook URL the notifier is disabled.
type NotifyConfig struct {
	BotToken       string        `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID         string        `yaml:"chat_id" mapstructure:"chat_id"`
	WebhookURL     string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	Rate           float64       `yaml:"rate" mapstructure:"rate"` // messages per second
	QueueSize      int           `yaml:"queue_size" mapstructure:"queue_size"`
	FlushInterval  time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
	HealthInterval time.Duration `yaml:"health_interval" mapstructure:"health_interval"`
}

// PreviewConfig configures the web preview connectors.
type PreviewConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	Connections  int           `yaml:"connections" mapstructure:"connections"`
	Rate         float64       `yaml:"rate" mapstructure:"rate"` // requests per second per connection
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxPages     int           `yaml:"max_pages" mapstructure:"max_pages"`
}

// ServerConfig configures the HTTP query surface.
type ServerConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path looks
// for an optional config.yaml in the working directory; an explicit path
// must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	aiDefaults := ai.DefaultConfig()

	v.SetDefault("store.driver", "badger")
	v.SetDefault("store.path", "./data")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)

	v.SetDefault("ai.host", "")
	v.SetDefault("ai.embedding_host", aiDefaults.EmbeddingHost)
	v.SetDefault("ai.classifier_host", aiDefaults.ClassifierHost)
	v.SetDefault("ai.embedding_model", aiDefaults.EmbeddingModel)
	v.SetDefault("ai.classifier_model", aiDefaults.ClassifierModel)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.min_confidence", aiDefaults.MinConfidence)
	v.SetDefault("ai.max_retries", aiDefaults.MaxRetries)
	v.SetDefault("ai.retry_delay", aiDefaults.RetryDelay)

	v.SetDefault("registry.driver", "file")
	v.SetDefault("registry.path", "channels.txt")
	v.SetDefault("registry.dsn", "")

	v.SetDefault("pipeline.pool_size", 0)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("pipeline.call_timeout", 60*time.Second)
	v.SetDefault("pipeline.reconcile_interval", 30*time.Second)
	v.SetDefault("pipeline.backfill_delay", 500*time.Millisecond)
	v.SetDefault("pipeline.source_pause", 2*time.Second)
	v.SetDefault("pipeline.auth_cooldown", 300*time.Second)

	v.SetDefault("search.candidates", 50)
	v.SetDefault("search.valuation_candidates", 30)
	v.SetDefault("search.valuation_threshold", 0.80)
	v.SetDefault("search.min_samples", 3)
	v.SetDefault("search.call_timeout", 30*time.Second)

	v.SetDefault("deal.neighbors", 10)
	v.SetDefault("deal.similarity_threshold", 0.85)
	v.SetDefault("deal.min_neighbors", 3)
	v.SetDefault("deal.deal_threshold", -0.15)
	v.SetDefault("deal.overpriced_threshold", 0.15)

	v.SetDefault("notify.bot_token", "")
	v.SetDefault("notify.chat_id", "")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.rate", 1.0)
	v.SetDefault("notify.queue_size", 100)
	v.SetDefault("notify.flush_interval", 60*time.Second)
	v.SetDefault("notify.health_interval", 6*time.Hour)

	v.SetDefault("preview.base_url", "https://t.me")
	v.SetDefault("preview.connections", 1)
	v.SetDefault("preview.rate", 1.0)
	v.SetDefault("preview.poll_interval", 60*time.Second)
	v.SetDefault("preview.max_pages", 50)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Options converts the AI settings into ai.ConfigOption values. A non-empty
// Host overrides both service hosts.
func (c AIConfig) Options() []ai.ConfigOption {
	opts := []ai.ConfigOption{
		ai.WithEmbeddingHost(c.EmbeddingHost),
		ai.WithClassifierHost(c.ClassifierHost),
		ai.WithEmbeddingModel(c.EmbeddingModel),
		ai.WithClassifierModel(c.ClassifierModel),
		ai.WithAPIKey(c.APIKey),
		ai.WithMinConfidence(c.MinConfidence),
		ai.WithRetries(c.MaxRetries, c.RetryDelay),
	}
	if c.Host != "" {
		opts = append(opts, ai.WithHost(c.Host))
	}
	return opts
}

// Options converts the pipeline settings into ingestion options.
func (c PipelineConfig) Options() []ingestion.Option {
	opts := []ingestion.Option{
		ingestion.WithQueueSize(c.QueueSize),
		ingestion.WithCallTimeout(c.CallTimeout),
		ingestion.WithReconcileInterval(c.ReconcileInterval),
		ingestion.WithBackfillDelay(c.BackfillDelay, c.SourcePause),
		ingestion.WithAuthCooldown(c.AuthCooldown),
	}
	if c.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(c.PoolSize))
	}
	return opts
}

// Options converts the search settings into search options.
func (c SearchConfig) Options() []search.Option {
	return []search.Option{
		search.WithCandidates(c.Candidates),
		search.WithValuationCandidates(c.ValuationCandidates),
		search.WithValuationThreshold(float32(c.ValuationThreshold)),
		search.WithMinSamples(c.MinSamples),
		search.WithCallTimeout(c.CallTimeout),
	}
}

// Options converts the deal settings into deal options.
func (c DealConfig) Options() []deal.Option {
	return []deal.Option{
		deal.WithNeighbors(c.Neighbors),
		deal.WithSimilarityThreshold(float32(c.SimilarityThreshold)),
		deal.WithMinNeighbors(c.MinNeighbors),
		deal.WithThresholds(c.DealThreshold, c.OverpricedThreshold),
	}
}

// Transport returns the configured event sink, or nil when notifications
// are disabled. The bot API takes precedence over a webhook.
func (c NotifyConfig) Transport() notify.Transport {
	switch {
	case c.BotToken != "" && c.ChatID != "":
		return notify.NewTelegramTransport(c.BotToken, c.ChatID)
	case c.WebhookURL != "":
		return notify.NewWebhookTransport(c.WebhookURL, &http.Client{Timeout: 10 * time.Second})
	default:
		return nil
	}
}

// Options converts the notifier settings into notify options.
func (c NotifyConfig) Options() []notify.Option {
	opts := []notify.Option{
		notify.WithQueueSize(c.QueueSize),
		notify.WithFlushInterval(c.FlushInterval),
	}
	if c.Rate > 0 {
		opts = append(opts, notify.WithRate(rate.Limit(c.Rate)))
	}
	return opts
}

// Connectors builds one web preview connector per configured connection.
func (c PreviewConfig) Connectors() []ingestion.Connector {
	n := max(1, c.Connections)
	connectors := make([]ingestion.Connector, 0, n)
	for i := 0; i < n; i++ {
		opts := []webpreview.Option{
			webpreview.WithName(fmt.Sprintf("preview-%d", i+1)),
			webpreview.WithBaseURL(c.BaseURL),
			webpreview.WithPollInterval(c.PollInterval),
			webpreview.WithMaxPages(c.MaxPages),
		}
		if c.Rate > 0 {
			opts = append(opts, webpreview.WithRate(rate.Limit(c.Rate)))
		}
		connectors = append(connectors, webpreview.New(opts...))
	}
	return connectors
}
