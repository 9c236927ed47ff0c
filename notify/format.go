package notify

import (
	"cmp"
	"fmt"
	"html"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// maxErrorRunes caps the error text kept per buffered error.
const maxErrorRunes = 200

func esc(s string) string {
	return html.EscapeString(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatAmount(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}

func formatLifecycle(service, verb, marker string, at time.Time) string {
	return fmt.Sprintf("%s <b>%s</b> %s\n🕐 %s",
		marker, esc(service), verb, at.UTC().Format("2006-01-02 15:04 UTC"))
}

func formatListing(e ListingEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 <b>%s</b>\n", esc(e.Title))
	if e.Link != "" {
		fmt.Fprintf(&b, "  🔗 %s\n", esc(e.Link))
	}

	price := "—"
	if e.Price != nil && *e.Price > 0 {
		currency := e.Currency
		if currency == "" {
			currency = "?"
		}
		price = formatAmount(*e.Price) + " " + esc(currency)
	}
	category := e.Category
	if category == "" {
		category = "?"
	}
	fmt.Fprintf(&b, "  💰 %s | 📂 %s | 📡 %s\n", price, esc(category), esc(e.Source))

	if len(e.Extra) > 0 {
		parts := make([]string, 0, len(e.Extra))
		for _, k := range slices.Sorted(maps.Keys(e.Extra)) {
			if e.Extra[k] == nil {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", esc(k), esc(fmt.Sprint(e.Extra[k]))))
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "  🧩 %s\n", strings.Join(parts, " | "))
		}
	}

	fmt.Fprintf(&b, "  📊 %.0f%% conf | ⏱ %dms", e.Confidence*100, e.ProcessingTime.Milliseconds())
	return b.String()
}

func formatDeal(e DealEvent) string {
	var b strings.Builder
	b.WriteString("🔥 <b>DEAL DETECTED</b>\n")
	fmt.Fprintf(&b, "  %s\n", esc(e.Title))
	fmt.Fprintf(&b, "  💰 %s %s vs median %s\n", formatAmount(e.Price), esc(e.Currency), formatAmount(e.Median))
	fmt.Fprintf(&b, "  📉 %.0f%% below market", math.Abs(e.Deviation)*100)
	if e.Link != "" {
		fmt.Fprintf(&b, "\n  🔗 %s", esc(e.Link))
	}
	return b.String()
}

func formatSearch(e SearchEvent) string {
	marker := "✅"
	if e.Results == 0 {
		marker = "⭕"
	}
	requester := ""
	if e.Requester != "" {
		requester = fmt.Sprintf(" by <code>%s</code>", esc(e.Requester))
	}
	return fmt.Sprintf("🔍 <b>Search</b>%s\n  %s %d results in %dms\n  📝 %s",
		requester, marker, e.Results, e.Elapsed.Milliseconds(), esc(e.Query))
}

func formatAlert(msg string) string {
	return "⚠️ <b>ALERT</b>\n" + esc(msg)
}

func formatSingleError(e errorEntry) string {
	return fmt.Sprintf("🔴 <b>Error</b> in %s\n  <code>%s</code>\n  🕐 %s",
		esc(e.context), esc(e.message), e.at.Format("15:04:05"))
}

// formatErrorSummary groups errors by context, most frequent first.
func formatErrorSummary(total int, groups map[string]int, last errorEntry, window time.Duration) string {
	type group struct {
		context string
		count   int
	}
	sorted := make([]group, 0, len(groups))
	for ctx, n := range groups {
		sorted = append(sorted, group{ctx, n})
	}
	slices.SortFunc(sorted, func(a, b group) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.context, b.context)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "🔴 <b>%d errors</b> in last %ds\n", total, int(window.Seconds()))
	for _, g := range sorted {
		fmt.Fprintf(&b, "\n  • %s: %dx", esc(g.context), g.count)
	}
	fmt.Fprintf(&b, "\n\n  Last: <code>%s</code>", esc(last.message))
	return b.String()
}
