package badger

import (
	"fmt"

	"github.com/shaxb/tele-google/core"
)

// Key prefixes for different data types
const (
	listingPrefix    = "lst:"
	listingKeyPrefix = "lstk:"
	statsPrefix      = "src:"
)

// makeListingKey generates the primary key for a listing by ID.
func makeListingKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s%d", listingPrefix, id))
}

// makeDedupKey generates the uniqueness key for (source, message).
// Its value is the listing ID.
func makeDedupKey(sourceID string, messageID int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%d", listingKeyPrefix, sourceID, messageID))
}

// makeStatsKey generates the key for a source's statistics.
func makeStatsKey(sourceID string) []byte {
	return []byte(statsPrefix + sourceID)
}
