// Package badge derives unread counts from ledger state. It owns no state
// of its own: every count is recomputed from the ledger so the badge can
// never drift from the source of truth.
package badge

import (
	"peerchat/pkg/ledger"
	"peerchat/pkg/models"
)

const pageSize = 512

// UnreadCount counts incoming Delivered messages past the first-unread
// marker. Reaction events are not renderable rows and do not badge. A row
// that was Pending and later became Delivered is one row; it can never be
// counted twice.
func UnreadCount(chatID string) (int, error) {
	marker, err := ledger.ReadMarker(chatID)
	if err != nil {
		return 0, err
	}
	count := 0
	for {
		page, err := ledger.ListSince(chatID, marker, pageSize)
		if err != nil {
			return 0, err
		}
		for _, m := range page {
			if m.Incoming && m.State == models.StateDelivered && !m.IsReaction() {
				count++
			}
		}
		if len(page) < pageSize {
			return count, nil
		}
		marker = page[len(page)-1].LocalID
	}
}

// MarkRead advances the first-unread marker to upTo. The marker never moves
// backward; the coordinator itself never advances it without an explicit
// call from the presentation layer.
func MarkRead(chatID string, upTo int64) error {
	return ledger.SetReadMarker(chatID, upTo)
}
