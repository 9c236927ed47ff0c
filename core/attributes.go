package core

import (
	"encoding/json"
	"strconv"
	"strings"
)

// knownAttributeKeys are the attribute keys mapped onto typed fields.
var knownAttributeKeys = map[string]bool{
	"price":     true,
	"currency":  true,
	"category":  true,
	"title":     true,
	"condition": true,
}

// Attributes is the structured data extracted from a listing.
// Known fields are typed; any other key the classifier returns lives in Extra.
type Attributes struct {
	Price     *float64
	Currency  string
	Category  string
	Title     string
	Condition string
	Extra     map[string]any
}

// HasPrice reports whether a positive price and a currency are both present.
func (a Attributes) HasPrice() bool {
	return a.Price != nil && *a.Price > 0 && a.Currency != ""
}

// MarshalJSON flattens the typed fields and Extra into one object.
func (a Attributes) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+5)
	for k, v := range a.Extra {
		if !knownAttributeKeys[k] {
			out[k] = v
		}
	}
	if a.Price != nil {
		out["price"] = *a.Price
	}
	if a.Currency != "" {
		out["currency"] = a.Currency
	}
	if a.Category != "" {
		out["category"] = a.Category
	}
	if a.Title != "" {
		out["title"] = a.Title
	}
	if a.Condition != "" {
		out["condition"] = a.Condition
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat object, accepting numeric strings for price.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Attributes{}
	for k, v := range raw {
		switch k {
		case "price":
			a.Price = parsePrice(v)
		case "currency":
			a.Currency = strings.ToUpper(stringValue(v))
		case "category":
			a.Category = stringValue(v)
		case "title":
			a.Title = stringValue(v)
		case "condition":
			a.Condition = stringValue(v)
		default:
			if v == nil {
				continue
			}
			if a.Extra == nil {
				a.Extra = make(map[string]any)
			}
			a.Extra[k] = v
		}
	}
	return nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// parsePrice accepts numbers and strings like "1 200" or "450.5".
func parsePrice(v any) *float64 {
	switch p := v.(type) {
	case float64:
		return &p
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if r == ' ' || r == ',' || r == '\u00a0' {
				return -1
			}
			return r
		}, p)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
