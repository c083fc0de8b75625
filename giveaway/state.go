package giveaway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Settings keys backing the round state.
const (
	SettingActive      = "giveaway_active"
	SettingRoundID     = "giveaway_round_id"
	SettingActivatedAt = "giveaway_activated_at"
)

// RoundState exposes the current round and its two admin transitions.
// Transitions are serialized by an in-process mutex on top of the store's
// transactional read/write, so a spin observes either the pre- or the
// post-transition snapshot, never a torn one.
type RoundState struct {
	mu    sync.Mutex
	store SettingsStore
}

func NewRoundState(store SettingsStore) *RoundState {
	return &RoundState{store: store}
}

// Current returns the (active, id) snapshot.
func (s *RoundState) Current(ctx context.Context) (Round, error) {
	return s.store.GetRound(ctx)
}

// StartNewRound activates the giveaway under a fresh round id (previous
// id + 1). Attempts and wins are keyed by round, so this implicitly resets
// every user's counters.
func (s *RoundState) StartNewRound(ctx context.Context) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.GetRound(ctx)
	if err != nil {
		return Round{}, fmt.Errorf("lettura stato giveaway: %w", err)
	}
	next := Round{Active: true, ID: cur.ID + 1}
	if err := s.store.SaveRound(ctx, next, time.Now()); err != nil {
		return Round{}, fmt.Errorf("attivazione round %d: %w", next.ID, err)
	}
	return next, nil
}

// Stop deactivates the giveaway. The round id is kept so existing attempts
// and winners stay attributed to it.
func (s *RoundState) Stop(ctx context.Context) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.GetRound(ctx)
	if err != nil {
		return Round{}, fmt.Errorf("lettura stato giveaway: %w", err)
	}
	cur.Active = false
	if err := s.store.SaveRound(ctx, cur, time.Time{}); err != nil {
		return Round{}, fmt.Errorf("disattivazione round %d: %w", cur.ID, err)
	}
	return cur, nil
}
