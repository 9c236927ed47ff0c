package core

import (
	"encoding/json"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Serializers for records stored in the embedded backend.
var (
	IDMUS          = idMUS{}
	ListingMUS     = listingMUS{}
	SourceStatsMUS = sourceStatsMUS{}
)

type idMUS struct{}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

func (idMUS) Marshal(v ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

// Times are stored as Unix microseconds, zero time as 0.
func timeToMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func microToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func sizeOptFloat(v *float64) int {
	if v == nil {
		return ord.Bool.Size(false)
	}
	return ord.Bool.Size(true) + raw.Float64.Size(*v)
}

func marshalOptFloat(v *float64, bs []byte) int {
	if v == nil {
		return ord.Bool.Marshal(false, bs)
	}
	n := ord.Bool.Marshal(true, bs)
	return n + raw.Float64.Marshal(*v, bs[n:])
}

func unmarshalOptFloat(bs []byte) (*float64, int, error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return nil, n, err
	}
	v, n1, err := raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return nil, n, err
	}
	return &v, n, nil
}

func sizeVector(v []float32) int {
	size := varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func marshalVector(v []float32, bs []byte) int {
	n := varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) ([]float32, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length == 0 {
		return nil, n, nil
	}
	v := make([]float32, length)
	for i := range v {
		f, n1, err := raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = f
	}
	return v, n, nil
}

type listingMUS struct{}

// attributesJSON never fails for values produced by Attributes.UnmarshalJSON;
// unsupported Extra values degrade to an empty object.
func attributesJSON(a Attributes) string {
	bs, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(bs)
}

func (listingMUS) Size(v Listing) int {
	return varint.Uint64.Size(uint64(v.ID)) +
		ord.String.Size(v.SourceID) +
		varint.Int64.Size(v.MessageID) +
		ord.String.Size(v.RawText) +
		sizeVector(v.Embedding) +
		ord.String.Size(attributesJSON(v.Attributes)) +
		sizeOptFloat(v.Price) +
		ord.String.Size(v.Currency) +
		sizeOptFloat(v.DealScore) +
		ord.Bool.Size(v.HasMedia) +
		ord.String.Size(v.MessageLink) +
		raw.Float64.Size(v.Confidence) +
		varint.Int64.Size(int64(v.ProcessingTime)) +
		varint.Int64.Size(timeToMicro(v.CreatedAt)) +
		varint.Int64.Size(timeToMicro(v.IndexedAt))
}

func (listingMUS) Marshal(v Listing, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.ID), bs)
	n += ord.String.Marshal(v.SourceID, bs[n:])
	n += varint.Int64.Marshal(v.MessageID, bs[n:])
	n += ord.String.Marshal(v.RawText, bs[n:])
	n += marshalVector(v.Embedding, bs[n:])
	n += ord.String.Marshal(attributesJSON(v.Attributes), bs[n:])
	n += marshalOptFloat(v.Price, bs[n:])
	n += ord.String.Marshal(v.Currency, bs[n:])
	n += marshalOptFloat(v.DealScore, bs[n:])
	n += ord.Bool.Marshal(v.HasMedia, bs[n:])
	n += ord.String.Marshal(v.MessageLink, bs[n:])
	n += raw.Float64.Marshal(v.Confidence, bs[n:])
	n += varint.Int64.Marshal(int64(v.ProcessingTime), bs[n:])
	n += varint.Int64.Marshal(timeToMicro(v.CreatedAt), bs[n:])
	n += varint.Int64.Marshal(timeToMicro(v.IndexedAt), bs[n:])
	return n
}

func (listingMUS) Unmarshal(bs []byte) (v Listing, n int, err error) {
	var n1 int

	id, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	v.ID = ID(id)

	v.SourceID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.MessageID, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.RawText, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Embedding, n1, err = unmarshalVector(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var attrs string
	attrs, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if err = json.Unmarshal([]byte(attrs), &v.Attributes); err != nil {
		return
	}

	v.Price, n1, err = unmarshalOptFloat(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Currency, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.DealScore, n1, err = unmarshalOptFloat(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.HasMedia, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.MessageLink, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Confidence, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var ticks int64
	ticks, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ProcessingTime = time.Duration(ticks)

	micros, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt = microToTime(micros)

	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.IndexedAt = microToTime(micros)
	return
}

type sourceStatsMUS struct{}

func (sourceStatsMUS) Size(v SourceStats) int {
	return ord.String.Size(v.SourceID) +
		varint.Int64.Size(v.TotalIndexed) +
		varint.Int64.Size(v.LastMessageID) +
		varint.Int64.Size(timeToMicro(v.LastScrapedAt))
}

func (sourceStatsMUS) Marshal(v SourceStats, bs []byte) (n int) {
	n = ord.String.Marshal(v.SourceID, bs)
	n += varint.Int64.Marshal(v.TotalIndexed, bs[n:])
	n += varint.Int64.Marshal(v.LastMessageID, bs[n:])
	n += varint.Int64.Marshal(timeToMicro(v.LastScrapedAt), bs[n:])
	return n
}

func (sourceStatsMUS) Unmarshal(bs []byte) (v SourceStats, n int, err error) {
	var n1 int
	v.SourceID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.TotalIndexed, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LastMessageID, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var micros int64
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LastScrapedAt = microToTime(micros)
	return
}
