package giveaway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
)

var (
	drawMu   sync.Mutex
	drawRand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// drawSign picks one of the 12 signs uniformly. Every attempt draws fresh:
// repeats across a user's attempts are possible and intended.
func drawSign() string {
	drawMu.Lock()
	defer drawMu.Unlock()
	return Signs[drawRand.Intn(len(Signs))]
}

// SpinResult is the outcome of a successful spin call.
type SpinResult struct {
	RoundID      int    `json:"roundId"`
	ResultSign   string `json:"resultSign"`
	UserSign     string `json:"userSign"`
	IsWinner     bool   `json:"isWinner"`
	AttemptsUsed int    `json:"attemptsUsed"`
	AttemptsLeft int    `json:"attemptsLeft"`
	MaxAttempts  int    `json:"maxAttempts"`
	WinCode      string `json:"winCode,omitempty"`
	Message      string `json:"message"`
}

// Status is the read-only eligibility snapshot shown by the wheel page.
type Status struct {
	Active        bool   `json:"active"`
	RoundID       int    `json:"roundId"`
	RequiresLogin bool   `json:"requiresLogin"`
	EmailVerified bool   `json:"emailVerified"`
	HasWon        bool   `json:"hasWon"`
	AttemptsUsed  int    `json:"attemptsUsed"`
	AttemptsLeft  int    `json:"attemptsLeft"`
	MaxAttempts   int    `json:"maxAttempts"`
	UserSign      string `json:"userSign,omitempty"`
	WinCode       string `json:"winCode,omitempty"`
	CanSpin       bool   `json:"canSpin"`
}

// Engine orchestrates a spin: eligibility checks, the draw, attempt and
// winner persistence, and the fire-and-forget win notification.
type Engine struct {
	users    UserStore
	rounds   *RoundState
	ledger   AttemptLedger
	winners  WinRegistry
	notifier Notifier

	locks *keyedMutex
	draw  func() string
}

func NewEngine(users UserStore, rounds *RoundState, ledger AttemptLedger, winners WinRegistry, notifier Notifier) *Engine {
	return &Engine{
		users:    users,
		rounds:   rounds,
		ledger:   ledger,
		winners:  winners,
		notifier: notifier,
		locks:    newKeyedMutex(),
		draw:     drawSign,
	}
}

func spinKey(userID uint, roundID int) string {
	return fmt.Sprintf("%d:%d", userID, roundID)
}

// Spin runs one play of the wheel for userID. Preconditions are checked in a
// fixed order and each failure maps to a distinct error; no row is written
// before the last check passes.
func (e *Engine) Spin(ctx context.Context, userID uint, acceptedTerms bool, meta Metadata) (*SpinResult, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if !acceptedTerms {
		return nil, ErrTermsNotAccepted
	}

	round, err := e.rounds.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !round.Active || round.ID <= 0 {
		return nil, ErrRoundInactive
	}

	user, err := e.users.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	userSign := NormalizeSign(user.SegnoZodiacale)
	if userSign == "" {
		return nil, ErrSignUnavailable
	}

	// Serialize check-then-insert per (user, round). The DB unique indexes
	// back this up across processes. ErrConflict can only originate from the
	// attempt insert, which commits nothing on failure, so re-running the
	// whole sequence once is safe.
	unlock := e.locks.lock(spinKey(userID, round.ID))
	defer unlock()

	res, err := e.spinLocked(ctx, user, round, userSign, meta)
	if errors.Is(err, ErrConflict) {
		res, err = e.spinLocked(ctx, user, round, userSign, meta)
	}
	return res, err
}

func (e *Engine) spinLocked(ctx context.Context, user *User, round Round, userSign string, meta Metadata) (*SpinResult, error) {
	if w, err := e.winners.FindWinner(ctx, user.ID, round.ID); err != nil {
		return nil, err
	} else if w != nil {
		return nil, &AlreadyWonError{WinCode: w.WinCode}
	}

	used, err := e.ledger.CountAttempts(ctx, user.ID, round.ID)
	if err != nil {
		return nil, err
	}
	if used >= MaxAttempts {
		return nil, ErrAttemptsExhausted
	}

	resultSign := e.draw()
	attempt := &Attempt{
		UserID:        user.ID,
		RoundID:       round.ID,
		UserSign:      userSign,
		ResultSign:    resultSign,
		IsWinner:      resultSign == userSign,
		AcceptedTerms: true,
		Metadata:      meta,
	}
	if err := e.ledger.RecordAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	res := &SpinResult{
		RoundID:      round.ID,
		ResultSign:   resultSign,
		UserSign:     userSign,
		IsWinner:     attempt.IsWinner,
		AttemptsUsed: attempt.AttemptNumber,
		AttemptsLeft: max(0, MaxAttempts-attempt.AttemptNumber),
		MaxAttempts:  MaxAttempts,
		Message:      "Nessuna vincita in questo tentativo. Puoi riprovare.",
	}

	if attempt.IsWinner {
		winner := &Winner{
			UserID:        user.ID,
			RoundID:       round.ID,
			WinningSign:   resultSign,
			AttemptNumber: attempt.AttemptNumber,
			SourceSpinID:  attempt.ID,
		}
		if err := e.winners.RecordWin(ctx, winner); err != nil {
			if errors.Is(err, ErrConflict) {
				// The attempt row is already committed; re-running the
				// spin would consume a second attempt. Strip the
				// retryable sentinel so the caller sees a plain failure.
				return nil, fmt.Errorf("registrazione vincita round %d utente %d: %v", round.ID, user.ID, err)
			}
			return nil, err
		}
		res.WinCode = winner.WinCode
		res.Message = "Complimenti! Hai vinto il libro cartaceo."
		e.notifyWin(user, winner.WinCode, userSign, round.ID)
	}
	return res, nil
}

// notifyWin dispatches the win notification without blocking the response.
// Failures are logged and never reach the caller; the win stays committed.
func (e *Engine) notifyWin(user *User, winCode, userSign string, roundID int) {
	if e.notifier == nil {
		return
	}
	u := *user
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.notifier.NotifyWin(ctx, &u, winCode, userSign, roundID); err != nil {
			log.Printf("[giveaway] notifica vincita fallita user=%d round=%d: %v", u.ID, roundID, err)
		}
	}()
}

// Status reports the wheel state for display. userID 0 (or a missing user)
// yields the logged-out shape with requiresLogin set and neutral counters.
func (e *Engine) Status(ctx context.Context, userID uint) (*Status, error) {
	round, err := e.rounds.Current(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Active:        round.Active,
		RoundID:       round.ID,
		RequiresLogin: true,
		MaxAttempts:   MaxAttempts,
	}
	if userID == 0 {
		return st, nil
	}
	user, err := e.users.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return st, nil
	}

	st.RequiresLogin = false
	st.EmailVerified = user.EmailVerified
	if sign := NormalizeSign(user.SegnoZodiacale); sign != "" {
		st.UserSign = sign
	} else {
		st.UserSign = user.SegnoZodiacale
	}

	if round.ID > 0 {
		winner, err := e.winners.FindWinner(ctx, userID, round.ID)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			st.HasWon = true
			st.WinCode = winner.WinCode
		}
		st.AttemptsUsed, err = e.ledger.CountAttempts(ctx, userID, round.ID)
		if err != nil {
			return nil, err
		}
	}
	st.AttemptsLeft = max(0, MaxAttempts-st.AttemptsUsed)
	st.CanSpin = round.Active && st.EmailVerified && !st.HasWon && st.AttemptsLeft > 0
	return st, nil
}
