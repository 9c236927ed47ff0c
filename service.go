// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package telegoogle

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaxb/tele-google/ai"
	"github.com/shaxb/tele-google/ai/openai"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/deal"
	"github.com/shaxb/tele-google/ingestion"
	"github.com/shaxb/tele-google/notify"
	"github.com/shaxb/tele-google/search"
	"github.com/shaxb/tele-google/storage"
	"github.com/shaxb/tele-google/storage/badger"
)

// Service holds the shared components of a process: the listing store,
// the model provider, the notifier and the deal evaluator. Pipelines and
// search engines are built from it.
type Service struct {
	store     storage.Store
	provider  ai.AIProvider
	notifier  *notify.Notifier
	evaluator *deal.Evaluator
	dataDir   string
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	store    storage.Store
	notifier *notify.Notifier
	dealOpts []deal.Option
	logger   *slog.Logger
}

// WithAIConfig sets the configuration of the OpenAI-compatible provider.
func WithAIConfig(cfg *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of building one from the AI config.
func WithProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithStore uses store instead of opening a badger store in the data directory.
func WithStore(store storage.Store) ServiceOption {
	return func(o *serviceOptions) {
		o.store = store
	}
}

// WithNotifier sets the event notifier. Default is a disabled notifier.
func WithNotifier(n *notify.Notifier) ServiceOption {
	return func(o *serviceOptions) {
		o.notifier = n
	}
}

// WithDealOptions configures the deal evaluator.
func WithDealOptions(opts ...deal.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.dealOpts = append(o.dealOpts, opts...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService opens the components. Unless WithStore is given, listings are
// kept in a badger store under dataDir.
func NewService(dataDir string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	store := options.store
	if store == nil {
		var err error
		store, err = badger.NewStore(dataDir)
		if err != nil {
			return nil, err
		}
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	evaluator, err := deal.NewEvaluator(store, append([]deal.Option{deal.WithLogger(options.logger)}, options.dealOpts...)...)
	if err != nil {
		provider.Close()
		store.Close()
		return nil, err
	}

	notifier := options.notifier
	if notifier == nil {
		notifier = notify.New(nil)
	}

	return &Service{
		store:     store,
		provider:  provider,
		notifier:  notifier,
		evaluator: evaluator,
		dataDir:   dataDir,
		logger:    options.logger,
	}, nil
}

// Close stops the notifier and closes the provider and the store.
func (s *Service) Close() error {
	logger := s.logger.With("component", "service")
	var errs []error
	if err := s.notifier.Stop(); err != nil {
		logger.Error("error stopping notifier", "err", err)
		errs = append(errs, err)
	}
	if err := s.provider.Close(); err != nil {
		logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		logger.Error("error closing store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) Store() storage.Store {
	return s.store
}

func (s *Service) Provider() ai.AIProvider {
	return s.provider
}

func (s *Service) Notifier() *notify.Notifier {
	return s.notifier
}

func (s *Service) Evaluator() *deal.Evaluator {
	return s.evaluator
}

// NewPipeline builds an ingestion pipeline on the service's components.
func (s *Service) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(s.logger)}, opts...)
	return ingestion.NewPipeline(s.store, s.store, s.provider, s.evaluator, s.notifier, opts...)
}

// NewEngine builds a search engine that reports every search to the
// notifier on behalf of requester.
func (s *Service) NewEngine(requester string, opts ...search.Option) (*search.Engine, error) {
	opts = append([]search.Option{
		search.WithLogger(s.logger),
		search.WithMonitor(&notifyMonitor{notifier: s.notifier, requester: requester}),
	}, opts...)
	return search.NewEngine(s.store, s.provider, opts...)
}

// NewHealthReporter builds a health reporter for the service's store and
// data directory.
func (s *Service) NewHealthReporter(opts ...notify.HealthOption) *notify.HealthReporter {
	opts = append([]notify.HealthOption{notify.WithDataDir(s.dataDir)}, opts...)
	return notify.NewHealthReporter(s.notifier, s.store, opts...)
}

// notifyMonitor forwards finished searches to the notifier.
type notifyMonitor struct {
	notifier  *notify.Notifier
	requester string
}

var _ search.SearchMonitor = (*notifyMonitor)(nil)

func (m *notifyMonitor) Start(string)                    {}
func (m *notifyMonitor) AfterCandidates([]core.Neighbor) {}
func (m *notifyMonitor) AfterRerank([]int)               {}

func (m *notifyMonitor) RerankFallback(err error) {
	m.notifier.Error("search", fmt.Errorf("rerank: %w", err))
}

func (m *notifyMonitor) QueryFailed(stage string, err error) {
	m.notifier.Error("search", fmt.Errorf("%s: %w", stage, err))
}

func (m *notifyMonitor) Finish(query string, result *search.Result) {
	ev := notify.SearchEvent{Requester: m.requester, Query: query}
	if result != nil {
		ev.Results = len(result.Listings)
		ev.Elapsed = result.Elapsed
	}
	m.notifier.Search(ev)
}
