package notification

import (
	"context"
	"time"
)

type Kind string

const (
	KindTag     Kind = "tag"
	KindComment Kind = "comment"
	KindLike    Kind = "like"
	KindUpload  Kind = "upload"
)

// Notification is created unread and only ever mutated to flip Read to true.
type Notification struct {
	ID          string    `json:"id,omitempty"`
	ScopeID     string    `json:"scope_id"`
	RecipientID string    `json:"recipient_id"`
	Kind        Kind      `json:"kind"`
	Message     string    `json:"message"`
	SenderID    string    `json:"sender_id"`
	MediaID     string    `json:"media_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
}

// Collection is the document collection holding a scope's notifications.
func Collection(scopeID string) string {
	return "galleries/" + scopeID + "/notifications"
}

// Unsubscribe detaches a notification listener.
type Unsubscribe func()

// Service is the contract exposed to consumers (REST, websocket).
type Service interface {
	Create(n Notification)
	Subscribe(scopeID, recipientID string, cb func([]Notification)) Unsubscribe
	MarkRead(ctx context.Context, scopeID string, ids []string) error
	MarkAllRead(ctx context.Context, scopeID, recipientID string) error
	UnreadCount(ctx context.Context, scopeID, recipientID string) int
	Flush(ctx context.Context) error
}
