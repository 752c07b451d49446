package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leroytan/the-website-sub000/internal/common"
	"github.com/leroytan/the-website-sub000/internal/dbx"
	"github.com/leroytan/the-website-sub000/internal/server/models"
	"github.com/leroytan/the-website-sub000/internal/server/moderation"
	"github.com/leroytan/the-website-sub000/internal/server/notify"
	"github.com/leroytan/the-website-sub000/internal/server/repositories/chats"
	"github.com/leroytan/the-website-sub000/internal/server/repositories/messages"
)

// --- helpers ---

// newTxDB returns a sqlmock database expecting n committed transactions in
// any order.
func newTxDB(t *testing.T, n int) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	return db, mock
}

// --- in-memory repositories ---

type store struct {
	mu    sync.Mutex
	chats map[string]*models.Chat
	msgs  []*models.Message

	createChatErr error
	getChatErr    error
	createMsgErr  error
}

func newStore() *store {
	return &store{chats: make(map[string]*models.Chat)}
}

func (s *store) addChat(c *models.Chat) *models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[c.ID] = c
	return c
}

func (s *store) chat(id string) *models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.chats[id]
	return &c
}

func (s *store) messages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

type fakeChatsRepo struct{ s *store }

func (r fakeChatsRepo) GetByID(_ context.Context, id string) (*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.getChatErr != nil {
		return nil, r.s.getChatErr
	}
	c, ok := r.s.chats[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r fakeChatsRepo) GetByParticipants(_ context.Context, low, high string) (*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.chats {
		if c.UserLow == low && c.UserHigh == high {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeChatsRepo) Create(_ context.Context, c *models.Chat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createChatErr != nil {
		return r.s.createChatErr
	}
	for _, existing := range r.s.chats {
		if existing.UserLow == c.UserLow && existing.UserHigh == c.UserHigh {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	cp := *c
	r.s.chats[c.ID] = &cp
	return nil
}

func (r fakeChatsRepo) Unlock(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[id]
	if !ok || !c.Locked {
		return false, nil
	}
	c.Locked = false
	c.UnlockedAt = &at
	return true, nil
}

func (r fakeChatsRepo) TouchLastMessage(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.LastMessageAt = &at
	return nil
}

type fakeMessagesRepo struct{ s *store }

func (r fakeMessagesRepo) Create(_ context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createMsgErr != nil {
		return r.s.createMsgErr
	}
	cp := *m
	r.s.msgs = append(r.s.msgs, &cp)
	return nil
}

func (r fakeMessagesRepo) List(_ context.Context, f messages.ListFilter) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Message
	for _, m := range r.s.msgs {
		if m.ChatID != f.ChatID {
			continue
		}
		if f.Before != "" && m.ID >= f.Before {
			continue
		}
		if f.HideFlaggedFor != "" && m.IsFlagged && m.SenderID != f.HideFlaggedFor {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (r fakeMessagesRepo) MarkRead(_ context.Context, chatID, readerID string, at time.Time, includeFlagged bool) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.msgs {
		if m.ChatID != chatID || m.SenderID == readerID || m.ReadAt != nil {
			continue
		}
		if m.IsFlagged && !includeFlagged {
			continue
		}
		t := at
		m.ReadAt = &t
		n++
	}
	return n, nil
}

type fakeRepoManager struct{ s *store }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Chats(dbx.DBTX) chats.Repository              { return fakeChatsRepo{m.s} }
func (m *fakeRepoManager) Messages(dbx.DBTX) messages.Repository        { return fakeMessagesRepo{m.s} }

// --- collaborators ---

type pushed struct {
	userID  string
	payload []byte
}

type fakePusher struct {
	mu     sync.Mutex
	online map[string]bool
	sent   []pushed
}

func newFakePusher(online ...string) *fakePusher {
	p := &fakePusher{online: make(map[string]bool)}
	for _, u := range online {
		p.online[u] = true
	}
	return p
}

func (p *fakePusher) SendPersonalNotification(userID string, payload []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return 0, nil
	}
	p.sent = append(p.sent, pushed{userID: userID, payload: payload})
	return 1, nil
}

func (p *fakePusher) to(userID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [][]byte
	for _, s := range p.sent {
		if s.userID == userID {
			out = append(out, s.payload)
		}
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []notify.Unread
}

func (n *fakeNotifier) NotifyUnread(_ context.Context, u notify.Unread) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, u)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeAuditor struct {
	mu      sync.Mutex
	records []string
}

func (a *fakeAuditor) Record(_ context.Context, msg *models.Message, _ moderation.Verdict) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, msg.ID)
	return nil
}

func (a *fakeAuditor) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

type fakeModerator struct {
	verdict moderation.Verdict
	err     error
	calls   int
}

func (m *fakeModerator) Moderate(context.Context, string, float64) (moderation.Verdict, error) {
	m.calls++
	return m.verdict, m.err
}

type fakeMetrics struct {
	mu         sync.Mutex
	stored     map[bool]int
	failOpen   int
	suppressed int
	offline    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{stored: map[bool]int{}, offline: map[string]int{}}
}

func (m *fakeMetrics) MessageStored(flagged bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[flagged]++
}

func (m *fakeMetrics) ModerationFailedOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOpen++
}

func (m *fakeMetrics) DeliverySuppressed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed++
}

func (m *fakeMetrics) OfflineNotification(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline[result]++
}

var errDB = errors.New("connection reset")
