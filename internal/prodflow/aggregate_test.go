package prodflow

import (
	"strings"
	"testing"
	"time"
)

func TestRenderCategoryListingPartitionsCompletedFirst(t *testing.T) {
	completedAt := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	entries := []ThreadStatusEntry{
		{ThreadID: "t1", Ordinal: 1, Type: TypeLong, ScheduledPostDate: "2025-06-01"},
		{ThreadID: "t2", Ordinal: 2, Type: TypeShort, CompletedAt: &completedAt},
		{ThreadID: "t3", Ordinal: 3, Type: TypeLong},
	}
	entries[1].Statuses = map[DeliverableKind]StatusMark{
		KindVideo: {Value: StatusDelivered, UpdateCount: 2},
	}

	listing := RenderCategoryListing("gaming", entries)

	reviewedIdx := strings.Index(listing, "Reviewed:")
	pendingIdx := strings.Index(listing, "Pending:")
	if reviewedIdx < 0 || pendingIdx < 0 || reviewedIdx > pendingIdx {
		t.Fatalf("sections out of order:\n%s", listing)
	}
	reviewedSection := listing[reviewedIdx:pendingIdx]
	if !strings.Contains(reviewedSection, "#2") {
		t.Fatalf("completed entry missing from reviewed section:\n%s", listing)
	}
	if !strings.Contains(reviewedSection, "delivered(2)") {
		t.Fatalf("status mark missing update count:\n%s", listing)
	}
	pendingSection := listing[pendingIdx:]
	firstPending := strings.Index(pendingSection, "#1")
	secondPending := strings.Index(pendingSection, "#3")
	if firstPending < 0 || secondPending < 0 || firstPending > secondPending {
		t.Fatalf("pending entries out of insertion order:\n%s", listing)
	}
	if !strings.Contains(pendingSection, "video unset") {
		t.Fatalf("unset status not rendered:\n%s", listing)
	}
}

func TestRenderCategoryListingEmpty(t *testing.T) {
	listing := RenderCategoryListing("gaming", nil)
	if !strings.Contains(listing, "Reviewed:\n  (none)") {
		t.Fatalf("missing empty reviewed marker:\n%s", listing)
	}
	if !strings.Contains(listing, "Pending:\n  (none)") {
		t.Fatalf("missing empty pending marker:\n%s", listing)
	}
}
