package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
)

type fakeStore struct {
	mu   sync.Mutex
	rows []OutboxEvent
	sent map[uuid.UUID]bool
}

func newFakeStore(rows ...OutboxEvent) *fakeStore {
	return &fakeStore{rows: rows, sent: map[uuid.UUID]bool{}}
}

func (s *fakeStore) FetchByID(_ context.Context, id uuid.UUID) (OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id {
			if s.sent[id] {
				return OutboxEvent{}, ErrAlreadySent
			}
			return r, nil
		}
	}
	return OutboxEvent{}, ErrAlreadySent
}

func (s *fakeStore) FetchUnsent(_ context.Context, limit int) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEvent
	for _, r := range s.rows {
		if !s.sent[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = true
	return nil
}

func (s *fakeStore) CountUnsent(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if !s.sent[r.ID] {
			n++
		}
	}
	return n, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []OutboxEvent
	failures  map[uuid.UUID]int // remaining failures per event
}

func (p *fakePublisher) Publish(_ context.Context, ev OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[ev.ID] > 0 {
		p.failures[ev.ID]--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) versions() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, 0, len(p.published))
	for _, ev := range p.published {
		out = append(out, ev.Version)
	}
	return out
}

func outboxRows(lotID uuid.UUID, n int) []OutboxEvent {
	rows := make([]OutboxEvent, n)
	for i := range rows {
		rows[i] = OutboxEvent{
			ID:        uuid.New(),
			LotID:     lotID,
			Version:   int64(i + 2),
			EventType: "bid_placed",
			Payload:   json.RawMessage(fmt.Sprintf(`{"version":%d}`, i+2)),
		}
	}
	return rows
}

func testConfig() ListenerConfig {
	cfg := DefaultListenerConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetries = 2
	return cfg
}

func TestHandleNotificationRelaysOnce(t *testing.T) {
	rows := outboxRows(uuid.New(), 1)
	store := newFakeStore(rows...)
	pub := &fakePublisher{}
	l := NewListener(store, pub, testConfig())

	ctx := context.Background()
	if err := l.handleNotification(ctx, rows[0].ID.String()); err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if err := l.handleNotification(ctx, rows[0].ID.String()); err != nil {
		t.Fatalf("second notification should be a no-op: %v", err)
	}
	if got := pub.versions(); len(got) != 1 {
		t.Fatalf("want one publish got %v", got)
	}
	if processed, _ := l.Stats(); processed != 1 {
		t.Fatalf("want processed 1 got %d", processed)
	}
	if err := l.handleNotification(ctx, "not-a-uuid"); err == nil {
		t.Fatalf("expected error for malformed notification")
	}
}

func TestProcessUnsentKeepsOrderAcrossFailures(t *testing.T) {
	rows := outboxRows(uuid.New(), 3)
	store := newFakeStore(rows...)
	pub := &fakePublisher{failures: map[uuid.UUID]int{rows[1].ID: 10}}
	l := NewListener(store, pub, testConfig())

	if err := l.processUnsent(context.Background()); err == nil {
		t.Fatalf("expected the batch to stop on the failing row")
	}
	if got := pub.versions(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("only the first row should be published, got %v", got)
	}

	pub.mu.Lock()
	pub.failures = nil
	pub.mu.Unlock()
	if err := l.processUnsent(context.Background()); err != nil {
		t.Fatalf("process unsent: %v", err)
	}
	got := pub.versions()
	want := []int64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("want %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v got %v", want, got)
		}
	}
	if n, _ := store.CountUnsent(context.Background()); n != 0 {
		t.Fatalf("want no pending rows got %d", n)
	}
}

func TestPublishWithRetryRecovers(t *testing.T) {
	rows := outboxRows(uuid.New(), 1)
	pub := &fakePublisher{failures: map[uuid.UUID]int{rows[0].ID: 2}}
	l := NewListener(newFakeStore(rows...), pub, testConfig())

	if err := l.publishWithRetry(context.Background(), rows[0]); err != nil {
		t.Fatalf("publish should succeed on the third attempt: %v", err)
	}
	if got := pub.versions(); len(got) != 1 {
		t.Fatalf("want one publish got %v", got)
	}
}

func TestNewMessage(t *testing.T) {
	ev := outboxRows(uuid.New(), 1)[0]
	ev.EventType = "timer_extended"
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	msg, err := NewMessage(events.SubjectPrefix, ev, now)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if msg.Subject != "lot.events.timer_extended" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if msg.Header.Get("Lot-Version") != "2" || msg.Header.Get("Lot-ID") != ev.LotID.String() {
		t.Fatalf("unexpected headers %v", msg.Header)
	}
	var env events.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventID != ev.ID.String() || env.Version != 2 || string(env.Event) != string(ev.Payload) {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealthChecker(t *testing.T) {
	store := newFakeStore(outboxRows(uuid.New(), 2)...)
	l := NewListener(store, &fakePublisher{}, testConfig())
	l.setRunning(true)

	h := NewHealthChecker(l, pinger{}, nil, time.Minute)
	status := h.Check(context.Background())
	if !status.Healthy || status.PendingEvents != 2 || !status.DatabaseConnected {
		t.Fatalf("unexpected status %+v", status)
	}

	l.setRunning(false)
	h = NewHealthChecker(l, pinger{err: errors.New("down")}, nil, time.Minute)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 got %d", rec.Code)
	}
	var body HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ListenerActive || body.DatabaseConnected || len(body.Errors) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}
