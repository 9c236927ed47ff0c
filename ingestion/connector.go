package ingestion

import (
	"context"

	"github.com/shaxb/tele-google/core"
)

// Chat is a source resolved by a connector.
type Chat struct {
	ID       int64  // Connection-level chat identifier
	SourceID string // Normalized source ID, e.g. "@shop"
	Title    string
}

// Connector is one connection (account) to the messaging network.
// Implementations must be safe for concurrent use.
type Connector interface {
	// Name identifies the connection in logs.
	Name() string

	// Connect establishes the session. ErrUnauthorized is fatal.
	Connect(ctx context.Context) error

	// Resolve looks up a source by its normalized ID.
	Resolve(ctx context.Context, sourceID string) (Chat, error)

	// Watch delivers new messages of chat to handler until ctx is done.
	// handler must not block.
	Watch(ctx context.Context, chat Chat, handler func(core.Message)) error

	// History returns up to limit messages of chat with IDs above minID,
	// oldest first. A limit of 0 means no limit.
	History(ctx context.Context, chat Chat, limit int, minID int64) ([]core.Message, error)
}
