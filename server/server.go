// Copyright (c) 2025 BVK Chaitanya

// Package server runs the syncbot daemon: it owns the exchange adapters,
// resumes the enabled strategies, wires each one to a live account view
// through balance and position watchers, and exposes the HTTP api.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/bvk/syncbot/coinex"
	"github.com/bvk/syncbot/ctxutil"
	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/jobqueue"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvk/syncbot/pushover"
	"github.com/bvk/syncbot/statesync"
	"github.com/bvk/syncbot/strategy"
	"github.com/bvk/syncbot/telegram"
	"github.com/bvkgo/kv"
)

const ServerStateKey = "/server/state"

// strategyRuntime bundles one strategy with its live view and watchers.
// Each runtime owns its exchange's account state exclusively.
type strategyRuntime struct {
	uid string

	adapter exchange.Adapter

	view *statesync.View

	jobs *jobqueue.Queue

	strategy *strategy.Strategy

	balanceWatcher  *statesync.Watcher
	positionWatcher *statesync.Watcher

	cg ctxutil.CloseGroup
}

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	db kv.Database

	datastore *statesync.Datastore

	startTime time.Time

	exchangeMap map[string]exchange.Adapter

	telegramClient *telegram.Client
	pushoverClient *pushover.Client

	mu sync.Mutex

	// alertFreezeDeadlineMap suppresses repeated low balance alerts for an
	// exchange/currency pair till the deadline.
	alertFreezeDeadlineMap map[string]time.Time

	strategyMap map[string]*strategyRuntime

	// exchangeUIDMap records which strategy owns which exchange account.
	// Reconciled views and their db checkpoints are keyed by the exchange
	// name, so at most one strategy can use an exchange at a time.
	exchangeUIDMap map[string]string
}

func New(ctx context.Context, secrets *Secrets, db kv.Database, opts *Options) (_ *Server, status error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if secrets == nil || secrets.CoinEx == nil {
		return nil, fmt.Errorf("coinex credentials are required: %w", os.ErrInvalid)
	}
	if err := secrets.Check(); err != nil {
		return nil, fmt.Errorf("could not validate secrets: %w", err)
	}

	s := &Server{
		opts:                   *opts,
		db:                     db,
		datastore:              statesync.NewDatastore(db),
		startTime:              time.Now(),
		exchangeMap:            make(map[string]exchange.Adapter),
		alertFreezeDeadlineMap: make(map[string]time.Time),
		strategyMap:            make(map[string]*strategyRuntime),
		exchangeUIDMap:         make(map[string]string),
	}
	defer func() {
		if status != nil {
			s.Close()
		}
	}()

	cx, err := coinex.NewExchange(secrets.CoinEx.Key, secrets.CoinEx.Secret)
	if err != nil {
		return nil, fmt.Errorf("could not create coinex adapter: %w", err)
	}
	s.exchangeMap[cx.ExchangeName()] = cx

	if secrets.Telegram != nil {
		tc, err := telegram.New(ctx, db, secrets.Telegram)
		if err != nil {
			return nil, fmt.Errorf("could not create telegram client: %w", err)
		}
		s.telegramClient = tc
	}
	if secrets.Pushover != nil {
		pc, err := pushover.New(secrets.Pushover)
		if err != nil {
			return nil, fmt.Errorf("could not create pushover client: %w", err)
		}
		s.pushoverClient = pc
	}

	if err := s.registerTelegramCommands(ctx); err != nil {
		return nil, fmt.Errorf("could not register telegram commands: %w", err)
	}
	return s, nil
}

func (s *Server) Close() {
	s.cg.Close()

	for _, rt := range s.runtimes() {
		if err := s.stopStrategy(context.Background(), rt.uid); err != nil {
			slog.Error("could not stop strategy cleanly", "uid", rt.uid, "error", err)
		}
	}

	for name, adapter := range s.exchangeMap {
		if err := adapter.Close(); err != nil {
			slog.Error("could not close exchange adapter", "exchange", name, "error", err)
		}
	}
	if s.telegramClient != nil {
		s.telegramClient.Close()
	}
}

// Start resumes the strategies enabled in the previous run and starts the
// background checkpoint task.
func (s *Server) Start(ctx context.Context) error {
	if !s.opts.NoResume {
		state, err := kvutil.GetDB[gobs.ServerState](ctx, s.db, ServerStateKey)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not load server state: %w", err)
		}
		if state != nil {
			for _, uid := range state.EnabledStrategyIDs {
				if err := s.startStrategy(ctx, uid); err != nil {
					return fmt.Errorf("could not resume strategy %q: %w", uid, err)
				}
				slog.Info("resumed strategy", "uid", uid)
			}
		}
	}

	s.cg.Go(s.goCheckpoint)
	return nil
}

// Stop shuts down all running strategies after saving their state.
func (s *Server) Stop(ctx context.Context) error {
	s.cg.Close()

	for _, rt := range s.runtimes() {
		if err := s.stopStrategy(ctx, rt.uid); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) runtimes() []*strategyRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rts []*strategyRuntime
	for _, rt := range s.strategyMap {
		if rt != nil { // skips slots reserved by an in-flight startStrategy
			rts = append(rts, rt)
		}
	}
	return rts
}

func (s *Server) runtime(uid string) (*strategyRuntime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.strategyMap[uid]
	return rt, ok
}

func (s *Server) startStrategy(ctx context.Context, uid string) (status error) {
	state, err := kvutil.GetDB[gobs.StrategyState](ctx, s.db, path.Join(strategy.Keyspace, uid))
	if err != nil {
		return fmt.Errorf("could not load state for strategy %q: %w", uid, err)
	}

	adapter, ok := s.exchangeMap[state.ExchangeName]
	if !ok {
		return fmt.Errorf("no adapter for exchange %q: %w", state.ExchangeName, os.ErrNotExist)
	}

	s.mu.Lock()
	if _, ok := s.strategyMap[uid]; ok {
		s.mu.Unlock()
		return fmt.Errorf("strategy %q is already running: %w", uid, os.ErrExist)
	}
	if owner, ok := s.exchangeUIDMap[state.ExchangeName]; ok {
		s.mu.Unlock()
		return fmt.Errorf("exchange %q is in use by strategy %q: %w", state.ExchangeName, owner, os.ErrExist)
	}
	// Reserve the slots; released on failure below.
	s.strategyMap[uid] = nil
	s.exchangeUIDMap[state.ExchangeName] = uid
	s.mu.Unlock()

	defer func() {
		if status != nil {
			s.mu.Lock()
			delete(s.strategyMap, uid)
			delete(s.exchangeUIDMap, state.ExchangeName)
			s.mu.Unlock()
		}
	}()

	view := statesync.NewView(state.ExchangeName)
	if err := s.datastore.LoadView(ctx, view); err != nil {
		return fmt.Errorf("could not restore view for %q: %w", state.ExchangeName, err)
	}

	rt := &strategyRuntime{
		uid:     uid,
		adapter: adapter,
		view:    view,
		jobs:    jobqueue.New(),
	}
	defer func() {
		if status != nil {
			rt.teardown()
		}
	}()

	srt := &strategy.Runtime{
		Database:  s.db,
		Exchange:  adapter,
		Messenger: s,
	}
	str, err := strategy.New(uid, state.ProductID, state.BaseAsset, state.QuoteAsset, state.MarginMode, srt, view)
	if err != nil {
		return fmt.Errorf("could not create strategy %q: %w", uid, err)
	}
	if err := str.Load(ctx); err != nil {
		return fmt.Errorf("could not load strategy %q: %w", uid, err)
	}
	rt.strategy = str

	bw, err := statesync.NewWatcher(state.ExchangeName+"-balance",
		statesync.NewBalanceReconciler(view, str, rt.jobs),
		func(ctx context.Context) (exchange.Event, error) {
			ev, err := adapter.GetBalances(ctx)
			if err != nil {
				return nil, err
			}
			return ev, nil
		},
		func() (<-chan exchange.Event, func()) {
			return eventChannel(adapter.BalanceUpdatesCh())
		},
		&statesync.Options{
			PollInterval: s.opts.BalancePollInterval,
			StallTimeout: s.opts.StallTimeout,
			ForcePoll:    s.opts.ForcePoll,
		})
	if err != nil {
		return fmt.Errorf("could not create balance watcher: %w", err)
	}
	rt.balanceWatcher = bw

	pw, err := statesync.NewWatcher(state.ExchangeName+"-position",
		statesync.NewPositionReconciler(view, str, rt.jobs),
		func(ctx context.Context) (exchange.Event, error) {
			ev, err := adapter.GetPositions(ctx)
			if err != nil {
				return nil, err
			}
			return ev, nil
		},
		func() (<-chan exchange.Event, func()) {
			return eventChannel(adapter.PositionUpdatesCh())
		},
		&statesync.Options{
			PollInterval: s.opts.PositionPollInterval,
			StallTimeout: s.opts.StallTimeout,
			ForcePoll:    s.opts.ForcePoll,
		})
	if err != nil {
		return fmt.Errorf("could not create position watcher: %w", err)
	}
	rt.positionWatcher = pw

	if err := bw.Start(); err != nil {
		return fmt.Errorf("could not start balance watcher: %w", err)
	}
	if err := pw.Start(); err != nil {
		return fmt.Errorf("could not start position watcher: %w", err)
	}

	rt.cg.Go(func(ctx context.Context) {
		if err := s.watchForLowBalance(ctx, rt.view); err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Warn("low balance watch has stopped", "uid", uid, "error", err)
			}
		}
	})

	s.mu.Lock()
	s.strategyMap[uid] = rt
	s.mu.Unlock()
	return nil
}

func (s *Server) stopStrategy(ctx context.Context, uid string) error {
	rt, ok := s.runtime(uid)
	if !ok || rt == nil {
		return fmt.Errorf("strategy %q is not running: %w", uid, os.ErrNotExist)
	}

	rt.teardown()

	if err := s.saveRuntime(ctx, rt); err != nil {
		return fmt.Errorf("could not checkpoint strategy %q: %w", uid, err)
	}

	s.mu.Lock()
	delete(s.strategyMap, uid)
	delete(s.exchangeUIDMap, rt.view.ExchangeName())
	s.mu.Unlock()
	return nil
}

func (rt *strategyRuntime) teardown() {
	rt.cg.Close()
	if rt.balanceWatcher != nil {
		rt.balanceWatcher.Stop()
	}
	if rt.positionWatcher != nil {
		rt.positionWatcher.Stop()
	}
	if rt.jobs != nil {
		rt.jobs.Close()
	}
}

func (s *Server) saveRuntime(ctx context.Context, rt *strategyRuntime) error {
	exname := rt.view.ExchangeName()
	if err := s.datastore.SaveView(ctx, rt.view); err != nil {
		return fmt.Errorf("could not save view: %w", err)
	}
	if rt.balanceWatcher != nil {
		if err := s.datastore.SaveWatcher(ctx, exname, rt.balanceWatcher); err != nil {
			return fmt.Errorf("could not save balance watcher: %w", err)
		}
	}
	if rt.positionWatcher != nil {
		if err := s.datastore.SaveWatcher(ctx, exname, rt.positionWatcher); err != nil {
			return fmt.Errorf("could not save position watcher: %w", err)
		}
	}
	if rt.strategy != nil {
		if err := rt.strategy.Save(ctx); err != nil {
			return fmt.Errorf("could not save strategy: %w", err)
		}
	}
	return nil
}

func (s *Server) goCheckpoint(ctx context.Context) {
	for {
		ctxutil.Sleep(ctx, s.opts.CheckpointInterval)
		if ctx.Err() != nil {
			return
		}
		for _, rt := range s.runtimes() {
			if err := s.saveRuntime(ctx, rt); err != nil {
				slog.Warn("could not checkpoint strategy", "uid", rt.uid, "error", err)
			}
		}
	}
}

// eventChannel adapts a typed update channel to the watcher's generic event
// channel. A nil input channel stays nil, which keeps the watcher in poll
// mode.
func eventChannel[T exchange.Event](ch <-chan T, stopf func()) (<-chan exchange.Event, func()) {
	if ch == nil {
		return nil, stopf
	}

	outch := make(chan exchange.Event)
	stopc := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(stopc)
			if stopf != nil {
				stopf()
			}
		})
	}

	go func() {
		defer close(outch)
		for {
			select {
			case <-stopc:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				select {
				case <-stopc:
					return
				case outch <- ev:
				}
			}
		}
	}()
	return outch, stop
}
