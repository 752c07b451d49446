// Package models defines the chat server's persisted data models.
package models

import "time"

// LockState is the visibility state of a chat. A chat starts LOCKED and moves
// to UNLOCKED once, when the external payment or match workflow completes.
type LockState string

const (
	LockStateLocked   LockState = "LOCKED"
	LockStateUnlocked LockState = "UNLOCKED"
)

// Chat is a private conversation between exactly two users.
// UserLow and UserHigh hold the participants in canonical order.
type Chat struct {
	ID            string
	UserLow       string
	UserHigh      string
	Locked        bool
	CreatedAt     time.Time
	UnlockedAt    *time.Time
	LastMessageAt *time.Time
}

// CanonicalPair orders two participant ids low-id-first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func (c *Chat) State() LockState {
	if c.Locked {
		return LockStateLocked
	}
	return LockStateUnlocked
}

func (c *Chat) IsParticipant(userID string) bool {
	return userID != "" && (userID == c.UserLow || userID == c.UserHigh)
}

// Counterpart returns the participant who is not userID, or "" when userID
// is not a participant.
func (c *Chat) Counterpart(userID string) string {
	switch userID {
	case c.UserLow:
		return c.UserHigh
	case c.UserHigh:
		return c.UserLow
	default:
		return ""
	}
}
