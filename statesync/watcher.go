// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bvk/syncbot/backoff"
	"github.com/bvk/syncbot/ctxutil"
	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/ringbuf"
)

// Reconciler is the kind-specific logic folding a raw adapter payload into
// the reconciled view. One concrete reconciler exists per tracked kind,
// selected at watcher construction.
type Reconciler interface {
	// EventName identifies the payload kind this reconciler accepts.
	EventName() string

	// Reconcile folds one payload into the view. The watch flag is true
	// for pushed events and false for polled snapshots.
	Reconcile(ctx context.Context, at time.Time, ev exchange.Event, watch bool) error
}

type Options struct {
	// PollInterval is the fetch period in poll mode.
	PollInterval time.Duration

	// BufferCapacity bounds the raw sample buffer.
	BufferCapacity int

	// StallTimeout forces a recovery fetch when no sample is processed
	// for this long.
	StallTimeout time.Duration

	// ForcePoll disables push mode even when the adapter supports it.
	ForcePoll bool

	// Clock overrides the wall clock in tests.
	Clock Clock
}

func (v *Options) setDefaults() {
	if v.PollInterval == 0 {
		v.PollInterval = 10 * time.Second
	}
	if v.BufferCapacity == 0 {
		v.BufferCapacity = 16
	}
	if v.StallTimeout == 0 {
		v.StallTimeout = time.Minute
	}
	if v.Clock == nil {
		v.Clock = wallClock{}
	}
}

// Watcher drives one ingestion and reconciliation pipeline for one tracked
// payload kind of one strategy. Samples arrive into the raw buffer from a
// push subscription or a poll timer; a single consumer task drains the
// buffer and hands the newest sample to the reconciler.
type Watcher struct {
	opts Options

	name string

	recon Reconciler

	// fetchf fetches one full snapshot over the request-response API.
	fetchf func(ctx context.Context) (exchange.Event, error)

	// subscribef registers a push subscription. A nil channel means push
	// is unsupported and the watcher runs in poll mode.
	subscribef func() (<-chan exchange.Event, func())

	buf *ringbuf.Buffer[exchange.Event]

	retry *backoff.Policy

	mu sync.Mutex

	// cg is non-nil while the watcher is running.
	cg *ctxutil.CloseGroup

	watch bool

	startedAt time.Time

	// fetching is true while one ingestion cycle is in flight.
	fetching bool

	// lastAt and lastSeq form the watermark of the newest processed
	// sample.
	lastAt  time.Time
	lastSeq int64

	lastProcessed time.Time

	numEvents  int64
	numSkipped int64
	numErrors  int64

	lastErrorAt  time.Time
	lastErrorMsg string

	firstSyncCh   chan struct{}
	firstSyncOnce sync.Once
}

// NewWatcher creates an idle watcher. The fetch function must be non-nil;
// the subscribe function may be nil when the adapter has no push stream for
// this kind.
func NewWatcher(name string, recon Reconciler, fetchf func(ctx context.Context) (exchange.Event, error), subscribef func() (<-chan exchange.Event, func()), opts *Options) (*Watcher, error) {
	if fetchf == nil {
		return nil, fmt.Errorf("fetch function cannot be nil: %w", os.ErrInvalid)
	}
	var vopts Options
	if opts != nil {
		vopts = *opts
	}
	vopts.setDefaults()

	w := &Watcher{
		opts:        vopts,
		name:        name,
		recon:       recon,
		fetchf:      fetchf,
		subscribef:  subscribef,
		buf:         ringbuf.New[exchange.Event](vopts.BufferCapacity),
		retry:       backoff.New(time.Second, time.Minute),
		firstSyncCh: make(chan struct{}),
	}
	return w, nil
}

// Start launches the ingestion tasks. It is idempotent; a second Start on a
// running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cg != nil {
		return nil
	}

	cg := new(ctxutil.CloseGroup)
	w.cg = cg
	w.startedAt = w.opts.Clock.Now()
	w.lastProcessed = w.startedAt

	// Mode is selected once per run and never switched at runtime.
	w.watch = !w.opts.ForcePoll && w.subscribef != nil

	if w.watch {
		ch, stopf := w.subscribef()
		if ch == nil {
			w.watch = false
		} else {
			cg.Go(func(ctx context.Context) {
				defer stopf()
				w.goWatch(ctx, ch)
			})
		}
	}
	if !w.watch {
		cg.Go(w.goPoll)
	}

	guard := &stallGuard{
		clock:     w.opts.Clock,
		threshold: w.opts.StallTimeout,
		lastf:     w.LastProcessed,
		forcef:    w.Fetch,
		name:      w.name,
	}
	cg.Go(guard.run)
	cg.Go(w.goProcess)

	mode := "poll"
	if w.watch {
		mode = "push"
	}
	slog.Info("account watcher started", "watcher", w.name, "event", w.recon.EventName(), "mode", mode)
	return nil
}

// Stop cancels the ingestion tasks and waits for them to finish. Jobs
// already scheduled by the reconciler are not interrupted. Idempotent; the
// watcher can be restarted later.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cg := w.cg
	w.cg = nil
	w.mu.Unlock()

	if cg != nil {
		cg.Close()
		slog.Info("account watcher stopped", "watcher", w.name)
	}
}

func (w *Watcher) Name() string {
	return w.name
}

// Mode returns "push" or "poll" per the current or last run.
func (w *Watcher) Mode() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watch {
		return "push"
	}
	return "poll"
}

// IsRunning returns true between Start and Stop.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cg != nil
}

// LastProcessed returns the time the newest sample was processed, or the
// start time when nothing was processed yet.
func (w *Watcher) LastProcessed() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastProcessed
}

// WaitReady blocks till the watcher has processed its first sample
// successfully. Callers are expected to apply their own timeout through the
// context.
func (w *Watcher) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-w.firstSyncCh:
		return nil
	}
}

// Fetch triggers one ingestion cycle unless one is already in flight.
// Returns true when a new fetch was started. Both the poll timer and the
// stall watchdog funnel through here.
func (w *Watcher) Fetch(ctx context.Context) (bool, error) {
	w.mu.Lock()
	if w.fetching {
		w.mu.Unlock()
		return false, nil
	}
	w.fetching = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.fetching = false
		w.mu.Unlock()
	}()

	ev, err := w.fetchf(ctx)
	if err != nil {
		w.recordError(err)
		return true, fmt.Errorf("could not fetch %s snapshot: %w", w.recon.EventName(), err)
	}
	w.buf.Add(w.opts.Clock.Now(), ev)
	return true, nil
}

// goPoll runs the poll-mode timer loop. Fetch errors feed the backoff
// policy and never terminate the loop.
func (w *Watcher) goPoll(ctx context.Context) {
	for context.Cause(ctx) == nil {
		if _, err := w.Fetch(ctx); err != nil {
			if context.Cause(ctx) == nil {
				slog.Warn("could not complete poll cycle (will retry)", "watcher", w.name, "err", err)
				w.retry.Sleep(ctx)
			}
			continue
		}
		w.retry.Success()
		ctxutil.Sleep(ctx, w.opts.PollInterval)
	}
}

// goWatch copies pushed events into the raw buffer.
func (w *Watcher) goWatch(ctx context.Context, ch <-chan exchange.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				slog.Warn("push subscription channel is closed", "watcher", w.name)
				return
			}
			w.buf.Add(w.opts.Clock.Now(), ev)
		}
	}
}

// goProcess is the single consumer task draining the raw buffer. Only the
// newest sample matters because reconciliation re-derives full state from
// each snapshot.
func (w *Watcher) goProcess(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.buf.Ready():
			for {
				sample, ok := w.buf.Latest()
				if !ok {
					break
				}
				if err := w.process(ctx, sample); err != nil {
					if context.Cause(ctx) != nil {
						return
					}
					w.recordError(err)
					slog.Warn("could not process sample (will retry)", "watcher", w.name, "err", err)
					w.retry.Sleep(ctx)
				}
			}
		}
	}
}

// process performs the staleness checks on one sample and dispatches it to
// the reconciler. The watermark advances on success and also on skipped
// samples, so a bad sample is never reprocessed.
func (w *Watcher) process(ctx context.Context, sample ringbuf.Sample[exchange.Event]) error {
	w.mu.Lock()
	if sample.At.Equal(w.lastAt) && sample.Seq == w.lastSeq {
		// Same (date, count) watermark; replayed sample.
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if name := sample.Value.EventName(); name != w.recon.EventName() {
		slog.Debug("skipping sample with unexpected event tag", "watcher", w.name, "event", name, "want", w.recon.EventName())
		w.advance(sample, false)
		return nil
	}

	if err := w.recon.Reconcile(ctx, sample.At, sample.Value, w.isWatch()); err != nil {
		return err
	}

	w.advance(sample, true)
	w.retry.Success()
	w.firstSyncOnce.Do(func() {
		close(w.firstSyncCh)
	})
	return nil
}

func (w *Watcher) isWatch() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watch
}

func (w *Watcher) advance(sample ringbuf.Sample[exchange.Event], processed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastAt = sample.At
	w.lastSeq = sample.Seq
	w.lastProcessed = w.opts.Clock.Now()
	if processed {
		w.numEvents++
	} else {
		w.numSkipped++
	}
}

func (w *Watcher) recordError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.numErrors++
	w.lastErrorAt = w.opts.Clock.Now()
	w.lastErrorMsg = err.Error()
}

// CheckpointState exports the watcher's counters for persistence and the
// status commands.
func (w *Watcher) CheckpointState(exchangeName string) *gobs.WatcherState {
	w.mu.Lock()
	defer w.mu.Unlock()

	mode := "poll"
	if w.watch {
		mode = "push"
	}
	return &gobs.WatcherState{
		ExchangeName:     exchangeName,
		EventName:        w.recon.EventName(),
		Mode:             mode,
		LastEventTime:    w.lastAt,
		LastEventSeq:     w.lastSeq,
		NumEvents:        w.numEvents,
		NumSkipped:       w.numSkipped,
		NumErrors:        w.numErrors,
		LastErrorTime:    w.lastErrorAt,
		LastErrorMessage: w.lastErrorMsg,
	}
}
