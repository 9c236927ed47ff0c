// Package registry holds the list of sources the ingestion pipeline watches.
//
// A Registry is polled: Load returns the current set and records a change
// token, Changed compares the token with the backing medium. Reloading is
// the pipeline's job; the registry never pushes.
package registry

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/shaxb/tele-google/core"
)

// Registry is a polled list of source identifiers.
type Registry interface {
	// Load returns the normalized source IDs and records the change token.
	Load(ctx context.Context) ([]string, error)

	// Changed reports whether the list changed since the last Load.
	// It is true before the first Load.
	Changed(ctx context.Context) (bool, error)
}

// Editor is implemented by registries that can be modified in place.
type Editor interface {
	Registry

	// Add inserts id and reports whether it was new.
	Add(ctx context.Context, id string) (bool, error)

	// Remove deletes id and reports whether it was present.
	Remove(ctx context.Context, id string) (bool, error)
}

var sourceIDPattern = regexp.MustCompile(`^@[A-Za-z0-9_]{2,64}$`)

// NormalizeID normalizes id and checks it looks like a public channel name.
func NormalizeID(id string) (string, error) {
	normalized := core.NormalizeSourceID(id)
	if !sourceIDPattern.MatchString(normalized) {
		return "", &InvalidIDError{ID: id}
	}
	return normalized, nil
}

// normalizeAll normalizes ids, dropping invalid entries and duplicates while
// keeping first-seen order.
func normalizeAll(ids []string, logger *slog.Logger) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := NormalizeID(raw)
		if err != nil {
			logger.Warn("skipping invalid source id", "id", raw)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Option configures a registry.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func applyOptions(component string, opts []Option) settings {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = s.logger.With("component", component)
	return s
}
