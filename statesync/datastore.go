// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvkgo/kv"
)

const Keyspace = "/statesync/"

// Datastore persists reconciled view checkpoints and watcher counters so
// that a restarted server starts from the last known account state instead
// of an empty view.
type Datastore struct {
	db kv.Database
}

func NewDatastore(db kv.Database) *Datastore {
	return &Datastore{
		db: db,
	}
}

func balancesKey(exchangeName string) string {
	return path.Join(Keyspace, "balances", exchangeName)
}

func positionsKey(exchangeName string) string {
	return path.Join(Keyspace, "positions", exchangeName)
}

func watcherKey(exchangeName, eventName string) string {
	return path.Join(Keyspace, "watchers", exchangeName, eventName)
}

// SaveView checkpoints the view's balance and position snapshots.
func (ds *Datastore) SaveView(ctx context.Context, view *View) error {
	save := func(ctx context.Context, rw kv.ReadWriter) error {
		if err := kvutil.Set(ctx, rw, balancesKey(view.ExchangeName()), view.BalanceSnapshot()); err != nil {
			return fmt.Errorf("could not save balance snapshot: %w", err)
		}
		if err := kvutil.Set(ctx, rw, positionsKey(view.ExchangeName()), view.PositionSnapshot()); err != nil {
			return fmt.Errorf("could not save position snapshot: %w", err)
		}
		return nil
	}
	return kv.WithReadWriter(ctx, ds.db, save)
}

// LoadView restores a previously saved checkpoint into the view. A missing
// checkpoint is not an error.
func (ds *Datastore) LoadView(ctx context.Context, view *View) error {
	var balances *gobs.BalanceSnapshot
	var positions *gobs.PositionSnapshot

	load := func(ctx context.Context, r kv.Reader) error {
		bs, err := kvutil.Get[gobs.BalanceSnapshot](ctx, r, balancesKey(view.ExchangeName()))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not load balance snapshot: %w", err)
		}
		balances = bs

		ps, err := kvutil.Get[gobs.PositionSnapshot](ctx, r, positionsKey(view.ExchangeName()))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not load position snapshot: %w", err)
		}
		positions = ps
		return nil
	}
	if err := kv.WithReader(ctx, ds.db, load); err != nil {
		return err
	}

	view.restore(balances, positions)
	return nil
}

// SaveWatcher checkpoints one watcher's counters.
func (ds *Datastore) SaveWatcher(ctx context.Context, exchangeName string, w *Watcher) error {
	state := w.CheckpointState(exchangeName)
	return kvutil.SetDB(ctx, ds.db, watcherKey(exchangeName, state.EventName), state)
}

// LoadWatcher returns one watcher's last saved counters, or nil when the
// watcher was never checkpointed.
func (ds *Datastore) LoadWatcher(ctx context.Context, exchangeName, eventName string) (*gobs.WatcherState, error) {
	state, err := kvutil.GetDB[gobs.WatcherState](ctx, ds.db, watcherKey(exchangeName, eventName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return state, nil
}
