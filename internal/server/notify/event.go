// Package notify tells offline receivers that a chat has unread messages.
//
// Notifications are throttled per (receiver, chat) in Redis and published as
// JSON envelopes to an AMQP topic exchange. Envelopes carry ids only, never
// message content.
package notify

import "time"

// EventUnread is both the envelope type and the routing key.
const EventUnread = "chat.message.unread.v1"

const producer = "chat-server"

type Meta struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Producer string    `json:"producer,omitempty"`
	Time     time.Time `json:"time"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Unread identifies a message the receiver has not seen yet.
type Unread struct {
	RecipientID string `json:"recipient_id"`
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
}
