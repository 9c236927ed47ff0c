package server

import (
	"time"

	"github.com/shaxb/tele-google/core"
)

type listingJSON struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	MessageID  int64           `json:"message_id"`
	Link       string          `json:"link"`
	Title      string          `json:"title"`
	Text       string          `json:"text"`
	Price      *float64        `json:"price,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	DealScore  *float64        `json:"deal_score,omitempty"`
	Attributes core.Attributes `json:"attributes"`
	Similarity float32         `json:"similarity,omitempty"`
	PostedAt   string          `json:"posted_at"`
}

type searchResponse struct {
	Query     string        `json:"query"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Fallback  bool          `json:"fallback"`
	Results   []listingJSON `json:"results"`
}

type valuationResponse struct {
	Query       string        `json:"query"`
	Median      float64       `json:"median"`
	Mean        float64       `json:"mean"`
	Min         float64       `json:"min"`
	Max         float64       `json:"max"`
	SpreadPct   float64       `json:"spread_pct"`
	Currency    string        `json:"currency"`
	SampleCount int           `json:"sample_count"`
	Samples     []listingJSON `json:"samples"`
}

type sourceJSON struct {
	Source        string `json:"source"`
	TotalIndexed  int64  `json:"total_indexed"`
	LastMessageID int64  `json:"last_message_id"`
	LastScrapedAt string `json:"last_scraped_at,omitempty"`
}

type statsResponse struct {
	Listings          int64        `json:"listings"`
	ListingsWithPrice int64        `json:"listings_with_price"`
	Sources           []sourceJSON `json:"sources"`
}

func toListingJSON(l *core.Listing) listingJSON {
	return listingJSON{
		ID:         l.Key(),
		Source:     l.SourceID,
		MessageID:  l.MessageID,
		Link:       l.MessageLink,
		Title:      l.Title(),
		Text:       l.RawText,
		Price:      l.Price,
		Currency:   l.Currency,
		DealScore:  l.DealScore,
		Attributes: l.Attributes,
		PostedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
	}
}
