package prodflow

import (
	"fmt"
	"strings"
)

// RenderCategoryListing produces the /list-notifications text: completed
// entries first, then pending, each group in ledger insertion order.
func RenderCategoryListing(category string, entries []ThreadStatusEntry) string {
	completed := make([]ThreadStatusEntry, 0, len(entries))
	pending := make([]ThreadStatusEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.CompletedAt != nil {
			completed = append(completed, entry)
		} else {
			pending = append(pending, entry)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Notification listing for %s\n", category)
	b.WriteString("Reviewed:\n")
	if len(completed) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, entry := range completed {
		fmt.Fprintf(&b, "  %s [%s] posted %s / video %s / thumbnail %s / reviewed %s\n",
			OrdinalToken(entry.Ordinal),
			entry.Type,
			orUnset(entry.ScheduledPostDate),
			renderMark(entry.Statuses[KindVideo]),
			renderMark(entry.Statuses[KindThumbnail]),
			entry.CompletedAt.Format(dateLayout),
		)
	}
	b.WriteString("Pending:\n")
	if len(pending) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, entry := range pending {
		fmt.Fprintf(&b, "  %s [%s] posted %s / video %s / thumbnail %s\n",
			OrdinalToken(entry.Ordinal),
			entry.Type,
			orUnset(entry.ScheduledPostDate),
			renderMark(entry.Statuses[KindVideo]),
			renderMark(entry.Statuses[KindThumbnail]),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderMark(mark StatusMark) string {
	if mark.Value == "" {
		return "unset"
	}
	return fmt.Sprintf("%s(%d)", mark.Value, mark.UpdateCount)
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unset"
	}
	return value
}
