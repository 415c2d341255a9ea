package types

import "time"

// SubscriptionInfo is the metadata half of a Subscription — the queue itself
// is owned by the bus package, which is the only thing that holds
// Subscription handles.
type SubscriptionInfo struct {
	SubscriptionID string
	TaskID         string // bus topic; "" means "all tasks"
	CreatedAt      time.Time
	DroppedCount   uint64
}
