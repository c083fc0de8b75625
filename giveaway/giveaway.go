// Package giveaway implements the book giveaway: an attempt-limited wheel
// where a draw matching the user's natal sign wins a copy. State is scoped
// to rounds; a new round resets everyone's attempts and win eligibility.
package giveaway

import (
	"context"
	"time"
)

// MaxAttempts is the per-user spin cap within a single round.
const MaxAttempts = 3

// Round is a consistent snapshot of the giveaway state. ID 0 means no round
// was ever started.
type Round struct {
	Active bool
	ID     int
}

// User is the projection of an account the engine needs. A nil *User from
// the store means the account is absent or soft-deleted.
type User struct {
	ID             uint
	Nome           string
	Email          string
	EmailVerified  bool
	SegnoZodiacale string
}

// Metadata captures client details stored with every attempt for audit and
// anti-abuse review.
type Metadata struct {
	IPAddress string
	SessionID string
}

// Attempt is one spin of the wheel. Immutable once recorded; AttemptNumber
// and ID are assigned by the ledger at insert time.
type Attempt struct {
	ID            uint
	UserID        uint
	RoundID       int
	AttemptNumber int
	UserSign      string
	ResultSign    string
	IsWinner      bool
	AcceptedTerms bool
	Metadata      Metadata
	CreatedAt     time.Time
}

// Winner is the at-most-one-per-(user, round) winning record. WinCode and ID
// are assigned by the registry at insert time.
type Winner struct {
	ID            uint
	UserID        uint
	RoundID       int
	WinCode       string
	WinningSign   string
	AttemptNumber int
	SourceSpinID  uint
	Redeemed      bool
	CreatedAt     time.Time
}

// UserStore looks up accounts. Absent or soft-deleted users yield (nil, nil).
type UserStore interface {
	FindUser(ctx context.Context, id uint) (*User, error)
}

// SettingsStore persists the round state as durable key-value pairs. Both
// methods must read/write the keys atomically so a concurrent reader never
// sees active=true paired with a stale round id.
type SettingsStore interface {
	GetRound(ctx context.Context) (Round, error)
	// SaveRound writes active flag and round id together. A non-zero
	// activatedAt also records the activation timestamp.
	SaveRound(ctx context.Context, r Round, activatedAt time.Time) error
}

// AttemptLedger is the append-only spin record. RecordAttempt assigns the
// attempt number count+1 inside the same transaction as the insert, returns
// ErrAttemptsExhausted at the cap and ErrConflict when a concurrent writer
// took the same attempt number.
type AttemptLedger interface {
	CountAttempts(ctx context.Context, userID uint, roundID int) (int, error)
	RecordAttempt(ctx context.Context, a *Attempt) error
}

// WinRegistry records winners. RecordWin generates the win code, resolving
// code collisions internally (only the winner insert is repeated, never the
// caller's attempt), and returns *AlreadyWonError when a winner row already
// exists for (user, round).
type WinRegistry interface {
	FindWinner(ctx context.Context, userID uint, roundID int) (*Winner, error)
	RecordWin(ctx context.Context, w *Winner) error
}

// Notifier delivers the "you won" message. Best-effort: the engine calls it
// on its own goroutine and only logs failures.
type Notifier interface {
	NotifyWin(ctx context.Context, user *User, winCode, userSign string, roundID int) error
}
