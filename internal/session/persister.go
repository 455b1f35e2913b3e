package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/rpattn/colmap/internal/mapping"
)

// DefaultKey is the store key holding the session.
const DefaultKey = "csv-transformer-state"

const defaultWriteTimeout = 5 * time.Second

// Persister saves and loads snapshots under one key. Failures are logged and never reach
// the mapping session.
type Persister struct {
	store        Store
	key          string
	writeTimeout time.Duration
	logf         func(format string, args ...any)
}

// Option customizes a Persister.
type Option func(*Persister)

// WithKey overrides the store key.
func WithKey(key string) Option {
	return func(p *Persister) {
		if key != "" {
			p.key = key
		}
	}
}

// WithWriteTimeout bounds each save triggered by a machine event.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(p *Persister) {
		if timeout > 0 {
			p.writeTimeout = timeout
		}
	}
}

// WithLogger replaces the log function.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(p *Persister) {
		if logf != nil {
			p.logf = logf
		}
	}
}

// NewPersister returns a persister over store.
func NewPersister(store Store, opts ...Option) *Persister {
	p := &Persister{
		store:        store,
		key:          DefaultKey,
		writeTimeout: defaultWriteTimeout,
		logf:         log.Printf,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Save writes the whole snapshot of state, or removes the key when nothing worth keeping is left.
func (p *Persister) Save(ctx context.Context, state mapping.State) error {
	snap := FromState(state)
	if snap.IsEmpty() {
		if err := p.store.Delete(ctx, p.key); err != nil {
			p.logf("[session] failed to clear state: %v", err)
			return err
		}
		return nil
	}

	blob, err := Encode(snap)
	if err != nil {
		p.logf("[session] %v", err)
		return err
	}
	if err := p.store.Set(ctx, p.key, blob); err != nil {
		p.logf("[session] failed to save state: %v", err)
		return err
	}
	return nil
}

// Load returns the stored snapshot. A missing, unreadable or empty snapshot reports false;
// an empty one is also removed from the store.
func (p *Persister) Load(ctx context.Context) (*Snapshot, bool) {
	blob, err := p.store.Get(ctx, p.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.logf("[session] failed to load state: %v", err)
		}
		return nil, false
	}

	snap, err := Decode(blob)
	if err != nil {
		p.logf("[session] discarding unreadable state: %v", err)
		return nil, false
	}
	if snap.IsEmpty() {
		if err := p.store.Delete(ctx, p.key); err != nil {
			p.logf("[session] failed to clear empty state: %v", err)
		}
		return nil, false
	}
	return &snap, true
}

// Clear removes the stored snapshot.
func (p *Persister) Clear(ctx context.Context) error {
	return p.store.Delete(ctx, p.key)
}

// Listener saves after every event that touched persisted fields. Selection and filter
// changes are skipped since they are not stored.
func (p *Persister) Listener() mapping.Listener {
	return func(event mapping.Event) {
		switch event.Kind {
		case mapping.EventSelectionChanged, mapping.EventFilterChanged:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		defer cancel()
		_ = p.Save(ctx, event.State)
	}
}
