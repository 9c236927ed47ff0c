package ai

import (
	"time"

	"github.com/shaxb/tele-google/core"
)

// Classification is the classifier's verdict on a single text.
type Classification struct {
	IsListing  bool
	Attributes core.Attributes
	Confidence float64       // 0..1
	Raw        string        // Raw model response, kept for troubleshooting
	Elapsed    time.Duration // Time spent in the model call
}

// Candidate is one search candidate presented to the reranker.
type Candidate struct {
	Text       string
	Attributes core.Attributes
}

// CandidateFromListing builds a reranker candidate from a stored listing.
func CandidateFromListing(l *core.Listing) Candidate {
	return Candidate{Text: l.RawText, Attributes: l.Attributes}
}
