package models

import "time"

// MessageType distinguishes ordinary text from a contact request.
type MessageType string

const (
	MessageTypeText           MessageType = "TEXT"
	MessageTypeContactRequest MessageType = "CONTACT_REQUEST"
)

// ParseMessageType accepts the wire names; an empty value means TEXT.
func ParseMessageType(s string) (MessageType, bool) {
	switch MessageType(s) {
	case "", MessageTypeText:
		return MessageTypeText, true
	case MessageTypeContactRequest:
		return MessageTypeContactRequest, true
	default:
		return "", false
	}
}

// Message is a stored chat message. Content is always the sender's original
// text; FilteredContent is set exactly when IsFlagged is true.
type Message struct {
	ID                 string
	ChatID             string
	SenderID           string
	Content            string
	FilteredContent    *string
	IsFlagged          bool
	Type               MessageType
	ModerationProvider string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ReadAt             *time.Time
}

// ViewFor returns the text the given viewer may see. The sender always sees
// the original; anyone else sees the redacted text of a flagged message.
func (m *Message) ViewFor(viewerID string) string {
	if viewerID == m.SenderID || !m.IsFlagged || m.FilteredContent == nil {
		return m.Content
	}
	return *m.FilteredContent
}

// Envelope is the JSON frame pushed to a live connection and returned by
// history queries.
type Envelope struct {
	ID          string      `json:"id"`
	ChatID      string      `json:"chat_id"`
	Sender      string      `json:"sender"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	SentByUser  bool        `json:"sent_by_user"`
	IsFlagged   bool        `json:"is_flagged"`
}

// EnvelopeFor renders m as seen by viewerID.
func (m *Message) EnvelopeFor(viewerID string) Envelope {
	return Envelope{
		ID:          m.ID,
		ChatID:      m.ChatID,
		Sender:      m.SenderID,
		Content:     m.ViewFor(viewerID),
		MessageType: m.Type,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		SentByUser:  viewerID == m.SenderID,
		IsFlagged:   m.IsFlagged,
	}
}
