// Package services contains server-side business logic. This file implements
// ChatService, the gateway every chat message passes through: membership
// checks, moderation, persistence and delivery to live connections.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/leroytan/the-website-sub000/internal/common"
	"github.com/leroytan/the-website-sub000/internal/dbx"
	"github.com/leroytan/the-website-sub000/internal/logging"
	"github.com/leroytan/the-website-sub000/internal/server/config"
	"github.com/leroytan/the-website-sub000/internal/server/models"
	"github.com/leroytan/the-website-sub000/internal/server/moderation"
	"github.com/leroytan/the-website-sub000/internal/server/notify"
	"github.com/leroytan/the-website-sub000/internal/server/repositories/messages"
	"github.com/leroytan/the-website-sub000/internal/server/repositories/repomanager"
)

const (
	MaxContentLength    = 4000
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200

	backgroundTimeout = 5 * time.Second
)

// Moderator classifies message text; *moderation.Pipeline implements it.
type Moderator interface {
	Moderate(ctx context.Context, text string, threshold float64) (moderation.Verdict, error)
}

// Pusher writes a payload to every live connection of a user and returns the
// number of successful writes; *connections.Registry implements it.
type Pusher interface {
	SendPersonalNotification(userID string, payload []byte) (int, error)
}

type UnreadNotifier interface {
	NotifyUnread(ctx context.Context, u notify.Unread) error
}

type Auditor interface {
	Record(ctx context.Context, msg *models.Message, v moderation.Verdict) error
}

type GatewayMetrics interface {
	MessageStored(flagged bool)
	ModerationFailedOpen()
	DeliverySuppressed()
	OfflineNotification(result string)
}

type nopGatewayMetrics struct{}

func (nopGatewayMetrics) MessageStored(bool)         {}
func (nopGatewayMetrics) ModerationFailedOpen()      {}
func (nopGatewayMetrics) DeliverySuppressed()        {}
func (nopGatewayMetrics) OfflineNotification(string) {}

type ChatOption func(*ChatService)

func WithNotifier(n UnreadNotifier) ChatOption { return func(s *ChatService) { s.notifier = n } }

func WithAuditor(a Auditor) ChatOption { return func(s *ChatService) { s.auditor = a } }

func WithGatewayMetrics(m GatewayMetrics) ChatOption { return func(s *ChatService) { s.metrics = m } }

// ChatService owns the chat lifecycle. Messages of one chat are handled one at
// a time in receipt order; different chats proceed concurrently.
type ChatService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	moderator   Moderator
	pusher      Pusher
	notifier    UnreadNotifier
	auditor     Auditor
	metrics     GatewayMetrics
	log         logging.Logger

	threshold        float64
	moderateUnlocked bool

	locks chatLocks
	bg    sync.WaitGroup

	now   func() time.Time
	newID func() string
}

func NewChatService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, moderator Moderator, pusher Pusher, log logging.Logger, opts ...ChatOption) *ChatService {
	if log == nil {
		log = logging.Nop()
	}
	s := &ChatService{
		db:               db,
		repomanager:      m,
		moderator:        moderator,
		pusher:           pusher,
		metrics:          nopGatewayMetrics{},
		log:              log.With("module", "gateway"),
		threshold:        cfg.ModerationThreshold,
		moderateUnlocked: cfg.ModerateUnlocked,
		locks:            chatLocks{m: make(map[string]*chatLock)},
		now:              func() time.Time { return time.Now().UTC() },
		newID:            func() string { return ulid.Make().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close waits for in-flight offline notifications and audit writes.
func (s *ChatService) Close() {
	s.bg.Wait()
}

// Send stores a message and delivers it. The whole sequence runs under the
// chat's lock.
func (s *ChatService) Send(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (*models.Message, error) {
	unlock := s.locks.lock(chatID)
	defer unlock()

	msg, chat, err := s.storeMessage(ctx, chatID, senderID, content, msgType)
	if err != nil {
		return nil, err
	}
	s.Deliver(ctx, msg, chat)
	return msg, nil
}

// StoreMessage validates, moderates and persists a message without
// delivering it.
func (s *ChatService) StoreMessage(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (*models.Message, error) {
	msg, _, err := s.storeMessage(ctx, chatID, senderID, content, msgType)
	return msg, err
}

func (s *ChatService) storeMessage(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (*models.Message, *models.Chat, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, common.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, nil, common.ErrContentTooLong
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	chat, err := s.participantChat(ctx, chatID, senderID)
	if err != nil {
		return nil, nil, err
	}

	verdict := s.moderate(ctx, chat, content)

	now := s.now()
	msg := &models.Message{
		ID:                 s.newID(),
		ChatID:             chat.ID,
		SenderID:           senderID,
		Content:            content,
		Type:               msgType,
		ModerationProvider: verdict.Provider,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if verdict.Filtered {
		filtered := verdict.Content
		msg.FilteredContent = &filtered
		msg.IsFlagged = true
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Messages(tx).Create(ctx, msg); err != nil {
			return fmt.Errorf("error creating message: %w", err)
		}
		if err := s.repomanager.Chats(tx).TouchLastMessage(ctx, chat.ID, now); err != nil {
			return fmt.Errorf("error updating chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.MessageStored(msg.IsFlagged)
	s.log.Info(ctx, "message stored", "chat_id", chat.ID, "message_id", msg.ID, "flagged", msg.IsFlagged, "provider", msg.ModerationProvider)

	if msg.IsFlagged {
		s.audit(msg, verdict)
	}
	return msg, chat, nil
}

// moderate returns the zero verdict when moderation is skipped or fails.
func (s *ChatService) moderate(ctx context.Context, chat *models.Chat, content string) moderation.Verdict {
	if s.moderator == nil || (!chat.Locked && !s.moderateUnlocked) {
		return moderation.Verdict{}
	}

	v, err := s.moderator.Moderate(ctx, content, s.threshold)
	if err != nil {
		s.metrics.ModerationFailedOpen()
		s.log.Warn(ctx, "moderation unavailable, storing message unflagged", "chat_id", chat.ID, "error", err)
		return moderation.Verdict{}
	}
	return v
}

// Deliver pushes msg to the sender's connections and, unless the message is
// flagged in a locked chat, to the receiver's. An offline receiver gets an
// unread notification instead.
func (s *ChatService) Deliver(ctx context.Context, msg *models.Message, chat *models.Chat) {
	s.push(ctx, msg.SenderID, msg)

	receiver := chat.Counterpart(msg.SenderID)
	if receiver == "" {
		return
	}

	if msg.IsFlagged && chat.Locked {
		s.metrics.DeliverySuppressed()
		s.log.Info(ctx, "flagged message withheld from receiver", "chat_id", chat.ID, "message_id", msg.ID)
		return
	}

	if s.push(ctx, receiver, msg) == 0 {
		s.notifyOffline(msg, receiver)
	}
}

func (s *ChatService) push(ctx context.Context, userID string, msg *models.Message) int {
	if s.pusher == nil {
		return 0
	}
	payload, err := json.Marshal(msg.EnvelopeFor(userID))
	if err != nil {
		s.log.Error(ctx, "encode envelope", "message_id", msg.ID, "error", err)
		return 0
	}

	n, err := s.pusher.SendPersonalNotification(userID, payload)
	if err != nil {
		s.log.Warn(ctx, "push failed on some connections", "user_id", userID, "message_id", msg.ID, "error", err)
	}
	return n
}

func (s *ChatService) notifyOffline(msg *models.Message, receiver string) {
	if s.notifier == nil {
		return
	}
	u := notify.Unread{
		RecipientID: receiver,
		ChatID:      msg.ChatID,
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		err := s.notifier.NotifyUnread(ctx, u)
		switch {
		case errors.Is(err, notify.ErrThrottled):
			s.metrics.OfflineNotification("throttled")
		case err != nil:
			s.metrics.OfflineNotification("failed")
			s.log.Warn(ctx, "offline notification failed", "chat_id", u.ChatID, "recipient_id", u.RecipientID, "error", err)
		default:
			s.metrics.OfflineNotification("sent")
		}
	}()
}

func (s *ChatService) audit(msg *models.Message, v moderation.Verdict) {
	if s.auditor == nil {
		return
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		if err := s.auditor.Record(ctx, msg, v); err != nil {
			s.log.Warn(ctx, "audit archive failed", "message_id", msg.ID, "error", err)
		}
	}()
}

// GetOrCreateChat returns the chat between a and b, creating a LOCKED one on
// first contact. The order of a and b does not matter.
func (s *ChatService) GetOrCreateChat(ctx context.Context, a, b string) (*models.Chat, error) {
	if a == "" || b == "" {
		return nil, common.InvalidArg("both participant ids are required")
	}
	if a == b {
		return nil, common.ErrSelfChat
	}
	low, high := models.CanonicalPair(a, b)
	repo := s.repomanager.Chats(s.db)

	chat, err := repo.GetByParticipants(ctx, low, high)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error searching chat: %w", err)
	}

	chat = &models.Chat{
		ID:        uuid.NewString(),
		UserLow:   low,
		UserHigh:  high,
		Locked:    true,
		CreatedAt: s.now(),
	}
	if err := repo.Create(ctx, chat); err != nil {
		if !dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("error creating chat: %w", err)
		}
		// Lost the race to a concurrent first contact.
		chat, err = repo.GetByParticipants(ctx, low, high)
		if err != nil {
			return nil, fmt.Errorf("error searching chat: %w", err)
		}
		return chat, nil
	}

	s.log.Info(ctx, "chat created", "chat_id", chat.ID)
	return chat, nil
}

// GetHistory returns up to limit messages older than the before cursor,
// oldest first, as seen by viewerID. While the chat is locked the viewer does
// not see flagged messages sent by the other participant.
func (s *ChatService) GetHistory(ctx context.Context, chatID, viewerID, before string, limit int) ([]models.Envelope, error) {
	chat, err := s.participantChat(ctx, chatID, viewerID)
	if err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	filter := messages.ListFilter{ChatID: chat.ID, Before: before, Limit: limit}
	if chat.Locked {
		filter.HideFlaggedFor = viewerID
	}

	list, err := s.repomanager.Messages(s.db).List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing messages: %w", err)
	}

	out := make([]models.Envelope, 0, len(list))
	for _, m := range list {
		out = append(out, m.EnvelopeFor(viewerID))
	}
	return out, nil
}

// MarkRead marks the other participant's messages as read by viewerID and
// returns how many changed.
func (s *ChatService) MarkRead(ctx context.Context, chatID, viewerID string) (int64, error) {
	chat, err := s.participantChat(ctx, chatID, viewerID)
	if err != nil {
		return 0, err
	}

	n, err := s.repomanager.Messages(s.db).MarkRead(ctx, chat.ID, viewerID, s.now(), !chat.Locked)
	if err != nil {
		return 0, fmt.Errorf("error marking messages read: %w", err)
	}
	return n, nil
}

// Unlock moves a chat to UNLOCKED. Unlocking an unlocked chat succeeds
// without changes.
func (s *ChatService) Unlock(ctx context.Context, chatID string) (*models.Chat, error) {
	unlock := s.locks.lock(chatID)
	defer unlock()

	repo := s.repomanager.Chats(s.db)
	changed, err := repo.Unlock(ctx, chatID, s.now())
	if err != nil {
		return nil, fmt.Errorf("error unlocking chat: %w", err)
	}

	chat, err := repo.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrChatNotFound
		}
		return nil, fmt.Errorf("error searching chat: %w", err)
	}

	if changed {
		s.log.Info(ctx, "chat unlocked", "chat_id", chatID)
	}
	return chat, nil
}

func (s *ChatService) participantChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := s.repomanager.Chats(s.db).GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrChatNotFound
		}
		return nil, fmt.Errorf("error searching chat: %w", err)
	}
	if !chat.IsParticipant(userID) {
		return nil, common.ErrNotParticipant
	}
	return chat, nil
}

// chatLocks is a keyed mutex. Entries are dropped when no goroutine holds or
// waits for them.
type chatLocks struct {
	mu sync.Mutex
	m  map[string]*chatLock
}

type chatLock struct {
	sync.Mutex
	refs int
}

func (l *chatLocks) lock(key string) func() {
	l.mu.Lock()
	cl, ok := l.m[key]
	if !ok {
		cl = &chatLock{}
		l.m[key] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
