// Package session orchestrates one player's lifetime in the client: auth
// bootstrap, seeding local state, and routing commands between the command
// surface, the game store, and the sync scheduler.
package session

import (
	"context"
	"errors"
	"fmt"

	"coinfall/client/internal/api"
	"coinfall/client/internal/catalog"
	"coinfall/client/internal/game"
	"coinfall/client/internal/syncer"
	"coinfall/client/internal/telemetry"
)

// ErrUnknownBooster rejects purchases for types absent from the catalog
// before any network round-trip.
var ErrUnknownBooster = errors.New("unknown booster type")

// ErrInsufficientBalance fails a purchase locally when the displayed balance
// cannot cover the price. The backend re-checks authoritatively.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Backend is the slice of the API client the session drives. The sync
// round-trip itself belongs to the scheduler, not the session.
type Backend interface {
	Authenticate(ctx context.Context, identity api.TelegramIdentity) (api.AuthResult, error)
	FetchState(ctx context.Context) (game.ServerSnapshot, error)
	BuyBooster(ctx context.Context, boosterType string) (game.ServerSnapshot, error)
	UseDailyBooster(ctx context.Context) (api.DailyBoosterResult, error)
}

// JournalReader loads deltas persisted by a previous process so they can be
// replayed into the fresh session.
type JournalReader interface {
	LoadDeltas() ([]game.PendingDelta, error)
}

// Scheduler is the slice of the sync scheduler the session touches.
type Scheduler interface {
	Flush()
	Resume()
	Flags() syncer.Flags
}

// Config wires a session.
type Config struct {
	Store     *game.Store
	Backend   Backend
	Catalog   *catalog.Catalog
	Journal   JournalReader
	Scheduler Scheduler
	Identity  api.TelegramIdentity
	Logger    telemetry.Logger
}

// Session owns the bootstrap handshake and the command surface the UI calls.
type Session struct {
	store     *game.Store
	backend   Backend
	catalog   *catalog.Catalog
	journal   JournalReader
	scheduler Scheduler
	identity  api.TelegramIdentity
	logger    telemetry.Logger
}

// View is the snapshot the presentation layer renders: game state plus the
// connectivity flags.
type View struct {
	game.Snapshot
	syncer.Flags
}

// New builds a session over already-constructed components.
func New(cfg Config) *Session {
	return &Session{
		store:     cfg.Store,
		backend:   cfg.Backend,
		catalog:   cfg.Catalog,
		journal:   cfg.Journal,
		scheduler: cfg.Scheduler,
		identity:  cfg.Identity,
		logger:    cfg.Logger,
	}
}

// Bootstrap authenticates, fetches the authoritative snapshot, replays any
// persisted deltas on top of it, and reports whether this is a first login.
func (s *Session) Bootstrap(ctx context.Context) (bool, error) {
	auth, err := s.backend.Authenticate(ctx, s.identity)
	if err != nil {
		return false, fmt.Errorf("bootstrap auth: %w", err)
	}

	server, err := s.backend.FetchState(ctx)
	if err != nil {
		return false, fmt.Errorf("bootstrap state: %w", err)
	}

	var persisted []game.PendingDelta
	if s.journal != nil {
		persisted, err = s.journal.LoadDeltas()
		if err != nil {
			// A broken journal must not block login. Start clean.
			if s.logger != nil {
				s.logger.Printf("journal replay skipped: %v", err)
			}
			persisted = nil
		}
	}

	s.store.Seed(server, persisted)
	if len(persisted) > 0 && s.scheduler != nil {
		s.scheduler.Flush()
	}
	return auth.FirstLogin, nil
}

// Tap applies one tap and returns the updated view.
func (s *Session) Tap() (View, error) {
	snap, err := s.store.Tap()
	return s.view(snap), err
}

// BuyBooster validates the purchase against the catalog and displayed
// balance, then applies the authoritative purchase response.
func (s *Session) BuyBooster(ctx context.Context, boosterType string) (View, error) {
	def, ok := s.catalog.Lookup(boosterType)
	if !ok {
		return s.View(), fmt.Errorf("%w: %q", ErrUnknownBooster, boosterType)
	}
	if snap := s.store.Snapshot(); snap.Balance < def.Price {
		return s.view(snap), fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, snap.Balance, def.Price)
	}

	server, err := s.backend.BuyBooster(ctx, boosterType)
	if err != nil {
		return s.View(), fmt.Errorf("buy booster: %w", err)
	}
	return s.view(s.store.ApplyServer(server)), nil
}

// UseDailyBooster triggers the daily free energy refill.
func (s *Session) UseDailyBooster(ctx context.Context) (View, error) {
	result, err := s.backend.UseDailyBooster(ctx)
	if err != nil {
		return s.View(), fmt.Errorf("daily booster: %w", err)
	}
	snap := s.store.ApplyDailyBooster(result.CurrentEnergy, result.DailyBoosterUses, result.NextAvailableAt)
	return s.view(snap), nil
}

// Flush asks the scheduler for an explicit flush (visibility hidden,
// navigation away).
func (s *Session) Flush() {
	if s.scheduler != nil {
		s.scheduler.Flush()
	}
}

// Reauthenticate refreshes the bearer token and resumes paused syncing.
func (s *Session) Reauthenticate(ctx context.Context) error {
	if _, err := s.backend.Authenticate(ctx, s.identity); err != nil {
		return fmt.Errorf("reauthenticate: %w", err)
	}
	if s.scheduler != nil {
		s.scheduler.Resume()
	}
	return nil
}

// View returns the current render state.
func (s *Session) View() View {
	return s.view(s.store.Snapshot())
}

// Boosters lists the shop definitions.
func (s *Session) Boosters() []catalog.Definition {
	return s.catalog.Definitions()
}

func (s *Session) view(snap game.Snapshot) View {
	v := View{Snapshot: snap}
	if s.scheduler != nil {
		v.Flags = s.scheduler.Flags()
	}
	return v
}
