// Package client follows a single lot from the bidder's side. It combines
// clock reconciliation, the version gate and the adaptive poll scheduler.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/clients"
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/client/gate"
	"github.com/mcdev12/auctionhouse/go/internal/client/poll"
	"github.com/mcdev12/auctionhouse/go/internal/clocksync"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL        string           `yaml:"base_url"`
	LotID          uuid.UUID        `yaml:"lot_id"`
	BidderID       string           `yaml:"bidder_id"`
	Clock          clocksync.Config `yaml:"clock"`
	Poll           poll.Config      `yaml:"poll"`
	ReconnectDelay time.Duration    `yaml:"reconnect_delay"`
}

// Change describes one applied update.
type Change struct {
	View     gate.LotView
	Source   string
	Extended bool
}

type Watcher struct {
	cfg        Config
	clock      clockwork.Clock
	api        *clients.AuctionClient
	reconciler *clocksync.Reconciler
	gate       *gate.Gate
	sched      *poll.Scheduler
	dialer     *websocket.Dialer
	onChange   func(Change)

	mu sync.Mutex
}

func NewWatcher(cfg Config, clock clockwork.Clock, onChange func(Change)) *Watcher {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	api := clients.NewAuctionClient(strings.TrimSuffix(cfg.BaseURL, "/"))
	reconciler := clocksync.NewReconciler(clocksync.NewHTTPSource(api), clock, cfg.Clock)
	w := &Watcher{
		cfg:        cfg,
		clock:      clock,
		api:        api,
		reconciler: reconciler,
		gate:       gate.New(reconciler),
		dialer:     websocket.DefaultDialer,
		onChange:   onChange,
	}
	w.sched = poll.NewScheduler(clock, w.reconciler, cfg.Poll, w.Poll)
	return w
}

// Run polls once, then follows the lot over the websocket and the poll
// scheduler until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Poll(ctx); err != nil {
		log.Warn().Err(err).Str("lot_id", w.cfg.LotID.String()).Msg("initial snapshot failed")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.reconciler.Run(ctx) })
	g.Go(func() error { return w.sched.Run(ctx) })
	g.Go(func() error { return w.subscribe(ctx) })
	return g.Wait()
}

// Poll fetches the lot snapshot and offers it to the gate.
func (w *Watcher) Poll(ctx context.Context) error {
	snap, err := w.api.Snapshot(ctx, w.cfg.LotID)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	before, _ := w.gate.View(w.cfg.LotID)
	if w.gate.Reset(*snap) {
		w.applied(before, "poll")
	}
	return nil
}

func (w *Watcher) subscribe(ctx context.Context) error {
	for {
		err := w.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("lot_id", w.cfg.LotID.String()).Msg("lot stream dropped, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-w.clock.After(w.cfg.ReconnectDelay):
		}
	}
}

func (w *Watcher) streamURL() string {
	base := w.cfg.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	url := strings.TrimSuffix(base, "/") + "/ws/lots?lot_id=" + w.cfg.LotID.String()
	if w.cfg.BidderID != "" {
		url += "&bidder_id=" + w.cfg.BidderID
	}
	return url
}

func (w *Watcher) stream(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial lot stream: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var frame events.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		w.handleFrame(frame)
	}
}

func (w *Watcher) handleFrame(frame events.Frame) {
	w.mu.Lock()
	defer w.mu.Unlock()
	before, _ := w.gate.View(w.cfg.LotID)

	switch frame.Kind {
	case events.FrameSnapshot:
		if frame.Snapshot != nil && w.gate.Reset(*frame.Snapshot) {
			w.applied(before, "snapshot")
		}
	case events.FrameEvent:
		if frame.Event != nil && w.gate.Offer(*frame.Event) {
			w.applied(before, string(frame.Event.Type))
		}
	}
}

// applied reacts to a change the gate accepted. Callers hold w.mu.
func (w *Watcher) applied(before gate.LotView, source string) {
	view, _ := w.gate.View(w.cfg.LotID)

	var extension time.Duration
	if view.ExtensionCount > before.ExtensionCount && view.CloseAt.After(before.CloseAt) && !before.CloseAt.IsZero() {
		extension = view.CloseAt.Sub(before.CloseAt)
	}

	w.sched.Observe(poll.Observation{
		Status:    view.Status,
		CloseAt:   view.CloseAt,
		Extension: extension,
	})
	if view.Status.IsTerminal() {
		w.reconciler.Unwatch(view.LotID)
	} else {
		w.reconciler.Watch(view.LotID, view.CloseAt)
	}

	log.Debug().
		Str("lot_id", view.LotID.String()).
		Int64("version", view.Version).
		Str("price", view.Price.String()).
		Str("source", source).
		Msg("lot view updated")

	if w.onChange != nil {
		w.onChange(Change{View: view, Source: source, Extended: extension > 0})
	}
}

// OnChange replaces the change callback.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

func (w *Watcher) View() (gate.LotView, bool) {
	return w.gate.View(w.cfg.LotID)
}

// Remaining is the time left before close, measured on reconciled time.
func (w *Watcher) Remaining() time.Duration {
	view, ok := w.View()
	if !ok {
		return 0
	}
	return view.CloseAt.Sub(w.reconciler.Now())
}

func (w *Watcher) Band() poll.Band {
	return w.sched.Band()
}

func (w *Watcher) Stats() poll.Stats {
	return w.sched.Stats()
}

func (w *Watcher) Reconciler() *clocksync.Reconciler {
	return w.reconciler
}
