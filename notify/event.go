package notify

import (
	"time"

	"github.com/shaxb/tele-google/core"
)

// EventKind identifies the type of an event.
type EventKind string

const (
	KindStartup    EventKind = "startup"
	KindShutdown   EventKind = "shutdown"
	KindNewListing EventKind = "new_listing"
	KindError      EventKind = "error"
	KindDeal       EventKind = "deal"
	KindSearch     EventKind = "search"
	KindHealth     EventKind = "health"
	KindAlert      EventKind = "alert"
)

// Event is one rendered notification.
type Event struct {
	Kind EventKind
	Text string // Telegram-HTML
	Time time.Time
}

// ListingEvent describes a newly indexed listing.
type ListingEvent struct {
	Source         string
	Title          string
	Price          *float64
	Currency       string
	Category       string
	Confidence     float64
	ProcessingTime time.Duration
	Link           string
	Extra          map[string]any
}

// ListingEventFrom builds the event for a stored listing.
func ListingEventFrom(l *core.Listing) ListingEvent {
	return ListingEvent{
		Source:         l.SourceID,
		Title:          l.Title(),
		Price:          l.Price,
		Currency:       l.Currency,
		Category:       l.Attributes.Category,
		Confidence:     l.Confidence,
		ProcessingTime: l.ProcessingTime,
		Link:           l.MessageLink,
		Extra:          l.Attributes.Extra,
	}
}

// DealEvent describes a listing priced well below comparable listings.
type DealEvent struct {
	Title     string
	Price     float64
	Currency  string
	Median    float64
	Deviation float64 // negative for a deal
	Link      string
}

// SearchEvent describes one executed search.
type SearchEvent struct {
	Requester string // optional caller identity
	Query     string
	Results   int
	Elapsed   time.Duration
}

// errorEntry is one buffered error.
type errorEntry struct {
	context string
	message string
	at      time.Time
}
