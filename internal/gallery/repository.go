package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/rs/zerolog"
)

// ErrAlreadySubscribed is returned when a session subscribes twice
var ErrAlreadySubscribed = errors.New("change feed already subscribed")

// Snapshot is a read-only view of the repository's record set
type Snapshot struct {
	Records  []domain.Prompt
	Loaded   bool
	LoadedAt time.Time
}

// Find returns the record with id from the snapshot
func (s Snapshot) Find(id uuid.UUID) (domain.Prompt, bool) {
	for _, p := range s.Records {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Prompt{}, false
}

// Repository owns the authoritative in-memory copy of all prompts
type Repository struct {
	store  RemoteStore
	logger zerolog.Logger

	mu        sync.RWMutex
	records   []domain.Prompt
	loaded    bool
	loadedAt  time.Time
	installed uint64
	ticket    uint64

	listenersMu sync.RWMutex
	listeners   []func(Snapshot)

	subMu  sync.Mutex
	sub    Subscription
	cancel context.CancelFunc

	feedMu   sync.Mutex
	feedCtx  context.Context
	inflight sync.WaitGroup
}

// NewRepository creates a Repository over store
func NewRepository(store RemoteStore, logger zerolog.Logger) *Repository {
	return &Repository{
		store:  store,
		logger: logger.With().Str("component", "gallery_repository").Logger(),
	}
}

// Reload fetches the full record set and installs it atomically.
// On failure the previous set is kept and the error wraps ErrBackendUnavailable.
func (r *Repository) Reload(ctx context.Context) error {
	return r.reload(ctx, "explicit")
}

func (r *Repository) reload(ctx context.Context, trigger string) error {
	start := time.Now()

	r.mu.Lock()
	r.ticket++
	ticket := r.ticket
	r.mu.Unlock()

	fetched, err := r.store.Select(ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("trigger", trigger).Msg("Failed to reload prompts")
		if errors.Is(err, domain.ErrBackendUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	records := make([]domain.Prompt, len(fetched))
	for i, p := range fetched {
		records[i] = p.Clone()
	}

	r.mu.Lock()
	// A fetch that started before the installed one is older state
	if ticket < r.installed {
		r.mu.Unlock()
		r.logger.Debug().Uint64("ticket", ticket).Msg("Discarded superseded reload")
		return nil
	}
	r.records = records
	r.loaded = true
	r.loadedAt = time.Now()
	r.installed = ticket
	r.mu.Unlock()

	r.logger.Debug().
		Int("count", len(records)).
		Str("trigger", trigger).
		Dur("elapsed", time.Since(start)).
		Msg("Reloaded prompts")
	r.notify()
	return nil
}

// Snapshot returns the current record set without touching the network
func (r *Repository) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Repository) snapshotLocked() Snapshot {
	records := make([]domain.Prompt, len(r.records))
	for i, p := range r.records {
		records[i] = p.Clone()
	}
	return Snapshot{Records: records, Loaded: r.loaded, LoadedAt: r.loadedAt}
}

// OnReload registers fn to run after every installed reload
func (r *Repository) OnReload(fn func(Snapshot)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// notify reads a fresh snapshot so that the last notification always
// carries the newest installed set, whatever order reloads finish in.
func (r *Repository) notify() {
	r.listenersMu.RLock()
	listeners := make([]func(Snapshot), len(r.listeners))
	copy(listeners, r.listeners)
	r.listenersMu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	snap := r.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Subscribe opens the change feed for the session. Every change event,
// whatever its origin, triggers a full reload.
func (r *Repository) Subscribe(ctx context.Context) error {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.sub != nil {
		return ErrAlreadySubscribed
	}

	feedCtx, cancel := context.WithCancel(ctx)
	r.feedMu.Lock()
	r.feedCtx = feedCtx
	r.feedMu.Unlock()

	sub, err := r.store.Subscribe(feedCtx, r.HandleChange)
	if err != nil {
		r.closeFeed(cancel)
		return fmt.Errorf("%w: subscribe: %w", domain.ErrBackendUnavailable, err)
	}

	r.sub = sub
	r.cancel = cancel
	r.logger.Info().Str("table", domain.PromptTable).Msg("Realtime subscription active")
	return nil
}

// HandleChange is the change-feed handler registered by Subscribe. Reloads
// run concurrently so a slow fetch never blocks the feed; the ticket rule in
// reload keeps the newest fetch. Events arriving with no open feed are dropped.
func (r *Repository) HandleChange(ev domain.ChangeEvent) {
	r.feedMu.Lock()
	ctx := r.feedCtx
	if ctx == nil || ctx.Err() != nil {
		r.feedMu.Unlock()
		return
	}
	r.inflight.Add(1)
	r.feedMu.Unlock()

	r.logger.Debug().
		Str("type", string(ev.Type)).
		Str("prompt_id", ev.ID.String()).
		Msg("Realtime change received")

	go func() {
		defer r.inflight.Done()
		if err := r.reload(ctx, "realtime"); err != nil && ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("Realtime reload failed")
		}
	}()
}

func (r *Repository) closeFeed(cancel context.CancelFunc) {
	r.feedMu.Lock()
	cancel()
	r.feedCtx = nil
	r.feedMu.Unlock()
	r.inflight.Wait()
}

// Unsubscribe closes the change feed and waits for in-flight reloads
func (r *Repository) Unsubscribe() error {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.sub == nil {
		return nil
	}
	err := r.sub.Close()
	r.closeFeed(r.cancel)
	r.sub, r.cancel = nil, nil
	r.logger.Info().Msg("Realtime subscription closed")
	return err
}

// Subscribed reports whether the change feed is open
func (r *Repository) Subscribed() bool {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	return r.sub != nil
}
