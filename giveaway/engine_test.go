package giveaway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"
)

// In-memory collaborators honoring the same contracts as the gorm store:
// attempt numbers are assigned count+1 under the store lock, winners are
// unique per (user, round).

type memStore struct {
	mu       sync.Mutex
	users    map[uint]*User
	round    Round
	attempts map[string][]*Attempt
	winners  map[string]*Winner
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uint]*User),
		attempts: make(map[string][]*Attempt),
		winners:  make(map[string]*Winner),
	}
}

func key(userID uint, roundID int) string {
	return fmt.Sprintf("%d:%d", userID, roundID)
}

func (m *memStore) FindUser(_ context.Context, id uint) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetRound(_ context.Context) (Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round, nil
}

func (m *memStore) SaveRound(_ context.Context, r Round, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = r
	return nil
}

func (m *memStore) CountAttempts(_ context.Context, userID uint, roundID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts[key(userID, roundID)]), nil
}

func (m *memStore) RecordAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(a.UserID, a.RoundID)
	if len(m.attempts[k]) >= MaxAttempts {
		return ErrAttemptsExhausted
	}
	m.nextID++
	a.ID = m.nextID
	a.AttemptNumber = len(m.attempts[k]) + 1
	a.CreatedAt = time.Now()
	cp := *a
	m.attempts[k] = append(m.attempts[k], &cp)
	return nil
}

func (m *memStore) FindWinner(_ context.Context, userID uint, roundID int) (*Winner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.winners[key(userID, roundID)]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) RecordWin(_ context.Context, w *Winner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(w.UserID, w.RoundID)
	if existing, ok := m.winners[k]; ok {
		return &AlreadyWonError{WinCode: existing.WinCode}
	}
	m.nextID++
	w.ID = m.nextID
	w.WinCode = BuildWinCode(w.RoundID)
	w.CreatedAt = time.Now()
	cp := *w
	m.winners[k] = &cp
	return nil
}

type memNotifier struct {
	mu    sync.Mutex
	calls []string
	ch    chan struct{}
}

func newMemNotifier() *memNotifier {
	return &memNotifier{ch: make(chan struct{}, 16)}
}

func (n *memNotifier) NotifyWin(_ context.Context, user *User, winCode, _ string, roundID int) error {
	n.mu.Lock()
	n.calls = append(n.calls, fmt.Sprintf("%d:%d:%s", user.ID, roundID, winCode))
	n.mu.Unlock()
	n.ch <- struct{}{}
	return nil
}

func leone() *User {
	return &User{ID: 1, Nome: "Giulia", Email: "giulia@example.com", EmailVerified: true, SegnoZodiacale: "Leone"}
}

func newTestEngine(store *memStore, notifier Notifier) *Engine {
	return NewEngine(store, NewRoundState(store), store, store, notifier)
}

func activeRound(store *memStore, id int) {
	store.round = Round{Active: true, ID: id}
}

func TestSpinPreconditionsCheckedInOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthenticated", func(t *testing.T) {
		e := newTestEngine(newMemStore(), nil)
		if _, err := e.Spin(ctx, 0, true, Metadata{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("terms not accepted", func(t *testing.T) {
		store := newMemStore()
		store.users[1] = leone()
		activeRound(store, 5)
		e := newTestEngine(store, nil)
		if _, err := e.Spin(ctx, 1, false, Metadata{}); !errors.Is(err, ErrTermsNotAccepted) {
			t.Fatalf("expected ErrTermsNotAccepted, got %v", err)
		}
	})

	t.Run("round inactive", func(t *testing.T) {
		store := newMemStore()
		store.users[1] = leone()
		e := newTestEngine(store, nil)
		if _, err := e.Spin(ctx, 1, true, Metadata{}); !errors.Is(err, ErrRoundInactive) {
			t.Fatalf("expected ErrRoundInactive, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		store := newMemStore()
		activeRound(store, 5)
		e := newTestEngine(store, nil)
		if _, err := e.Spin(ctx, 42, true, Metadata{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("email not verified", func(t *testing.T) {
		store := newMemStore()
		u := leone()
		u.EmailVerified = false
		store.users[1] = u
		activeRound(store, 5)
		e := newTestEngine(store, nil)
		if _, err := e.Spin(ctx, 1, true, Metadata{}); !errors.Is(err, ErrEmailNotVerified) {
			t.Fatalf("expected ErrEmailNotVerified, got %v", err)
		}
	})

	t.Run("sign unavailable", func(t *testing.T) {
		store := newMemStore()
		u := leone()
		u.SegnoZodiacale = "ofiuco"
		store.users[1] = u
		activeRound(store, 5)
		e := newTestEngine(store, nil)
		if _, err := e.Spin(ctx, 1, true, Metadata{}); !errors.Is(err, ErrSignUnavailable) {
			t.Fatalf("expected ErrSignUnavailable, got %v", err)
		}
	})
}

func TestSpinWinCreatesWinnerAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	notifier := newMemNotifier()
	e := newTestEngine(store, notifier)
	e.draw = func() string { return "Leone" }

	res, err := e.Spin(ctx, 1, true, Metadata{IPAddress: "203.0.113.9", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	if !res.IsWinner || res.ResultSign != "Leone" || res.UserSign != "Leone" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.RoundID != 5 || res.AttemptsUsed != 1 || res.AttemptsLeft != 2 || res.MaxAttempts != MaxAttempts {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if ok, _ := regexp.MatchString(`^LULZ-5-[0-9A-F]{6}-[0-9A-Z]+$`, res.WinCode); !ok {
		t.Fatalf("win code %q does not match the expected pattern", res.WinCode)
	}

	w, err := store.FindWinner(ctx, 1, 5)
	if err != nil || w == nil {
		t.Fatalf("winner not recorded: %v", err)
	}
	if w.AttemptNumber != 1 || w.WinningSign != "Leone" || w.WinCode != res.WinCode || w.SourceSpinID == 0 {
		t.Fatalf("unexpected winner row: %+v", w)
	}

	select {
	case <-notifier.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("win notification was not dispatched")
	}
}

func TestSpinLossRecordsAttemptOnly(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	e := newTestEngine(store, nil)
	e.draw = func() string { return "Pesci" }

	res, err := e.Spin(ctx, 1, true, Metadata{})
	if err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	if res.IsWinner || res.WinCode != "" {
		t.Fatalf("loss should not carry a win code: %+v", res)
	}
	if res.AttemptsUsed != 1 || res.AttemptsLeft != 2 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if w, _ := store.FindWinner(ctx, 1, 5); w != nil {
		t.Fatalf("no winner expected, got %+v", w)
	}
}

func TestSpinAttemptCap(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	e := newTestEngine(store, nil)
	e.draw = func() string { return "Pesci" }

	for i := 1; i <= MaxAttempts; i++ {
		res, err := e.Spin(ctx, 1, true, Metadata{})
		if err != nil {
			t.Fatalf("spin %d failed: %v", i, err)
		}
		if res.AttemptsUsed != i {
			t.Fatalf("spin %d: attemptsUsed = %d", i, res.AttemptsUsed)
		}
	}

	if _, err := e.Spin(ctx, 1, true, Metadata{}); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
	if n, _ := store.CountAttempts(ctx, 1, 5); n != MaxAttempts {
		t.Fatalf("attempt count = %d after rejected 4th spin", n)
	}

	// Attempt numbers must form the gapless sequence 1..3.
	for i, a := range store.attempts[key(1, 5)] {
		if a.AttemptNumber != i+1 {
			t.Fatalf("attempt %d has number %d", i, a.AttemptNumber)
		}
	}
}

func TestSpinAfterWinReturnsExistingCode(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	notifier := newMemNotifier()
	e := newTestEngine(store, notifier)
	e.draw = func() string { return "Leone" }

	first, err := e.Spin(ctx, 1, true, Metadata{})
	if err != nil {
		t.Fatalf("first spin failed: %v", err)
	}

	_, err = e.Spin(ctx, 1, true, Metadata{})
	var already *AlreadyWonError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyWonError, got %v", err)
	}
	if already.WinCode != first.WinCode {
		t.Fatalf("code changed: %q vs %q", already.WinCode, first.WinCode)
	}
}

func TestNewRoundResetsAttemptsAndWins(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	e := newTestEngine(store, nil)
	e.draw = func() string { return "Leone" }

	if _, err := e.Spin(ctx, 1, true, Metadata{}); err != nil {
		t.Fatalf("winning spin failed: %v", err)
	}

	round, err := e.rounds.StartNewRound(ctx)
	if err != nil {
		t.Fatalf("StartNewRound failed: %v", err)
	}
	if round.ID != 6 || !round.Active {
		t.Fatalf("unexpected round after restart: %+v", round)
	}

	if w, _ := store.FindWinner(ctx, 1, 6); w != nil {
		t.Fatalf("win leaked into new round: %+v", w)
	}
	if n, _ := store.CountAttempts(ctx, 1, 6); n != 0 {
		t.Fatalf("attempts leaked into new round: %d", n)
	}

	res, err := e.Spin(ctx, 1, true, Metadata{})
	if err != nil {
		t.Fatalf("spin in new round failed: %v", err)
	}
	if res.RoundID != 6 || res.AttemptsUsed != 1 {
		t.Fatalf("unexpected result in new round: %+v", res)
	}
}

func TestConcurrentSpinsRespectCap(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	e := newTestEngine(store, nil)
	e.draw = func() string { return "Pesci" }

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Spin(ctx, 1, true, Metadata{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAttemptsExhausted):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != MaxAttempts {
		t.Fatalf("%d spins succeeded, want %d", succeeded, MaxAttempts)
	}

	attempts := store.attempts[key(1, 5)]
	if len(attempts) != MaxAttempts {
		t.Fatalf("%d attempts recorded, want %d", len(attempts), MaxAttempts)
	}
	seen := map[int]bool{}
	for _, a := range attempts {
		if seen[a.AttemptNumber] {
			t.Fatalf("duplicate attempt number %d", a.AttemptNumber)
		}
		seen[a.AttemptNumber] = true
	}
	for i := 1; i <= MaxAttempts; i++ {
		if !seen[i] {
			t.Fatalf("attempt number %d missing", i)
		}
	}
}

func TestConcurrentSpinsSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	e := newTestEngine(store, newMemNotifier())
	e.draw = func() string { return "Leone" }

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Spin(ctx, 1, true, Metadata{})
		}()
	}
	wg.Wait()

	if len(store.winners) != 1 {
		t.Fatalf("%d winner rows, want 1", len(store.winners))
	}
}

// flakyLedger fails the first RecordAttempt with ErrConflict to exercise the
// engine's single transparent retry.
type flakyLedger struct {
	AttemptLedger
	mu     sync.Mutex
	failed bool
}

func (f *flakyLedger) RecordAttempt(ctx context.Context, a *Attempt) error {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return ErrConflict
	}
	return f.AttemptLedger.RecordAttempt(ctx, a)
}

func TestSpinRetriesOnceOnConflict(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	e := NewEngine(store, NewRoundState(store), &flakyLedger{AttemptLedger: store}, store, nil)
	e.draw = func() string { return "Pesci" }

	res, err := e.Spin(ctx, 1, true, Metadata{})
	if err != nil {
		t.Fatalf("spin should survive one conflict: %v", err)
	}
	if res.AttemptsUsed != 1 {
		t.Fatalf("unexpected counters after retry: %+v", res)
	}
}

// flakyRegistry fails the first RecordWin with ErrConflict. The attempt row
// is committed by then, so the engine must not re-run the spin.
type flakyRegistry struct {
	WinRegistry
	mu     sync.Mutex
	failed bool
}

func (f *flakyRegistry) RecordWin(ctx context.Context, w *Winner) error {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return ErrConflict
	}
	return f.WinRegistry.RecordWin(ctx, w)
}

func TestWinConflictDoesNotConsumeSecondAttempt(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	e := NewEngine(store, NewRoundState(store), store, &flakyRegistry{WinRegistry: store}, nil)
	e.draw = func() string { return "Leone" }

	_, err := e.Spin(ctx, 1, true, Metadata{})
	if err == nil {
		t.Fatal("expected an error when the winner insert fails")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("registry conflict must not surface as retryable: %v", err)
	}
	if n, _ := store.CountAttempts(ctx, 1, 5); n != 1 {
		t.Fatalf("one spin call consumed %d attempts", n)
	}
	if len(store.winners) != 0 {
		t.Fatalf("winner row recorded despite the failed insert")
	}

	// The next spin proceeds normally and its winner row references the
	// attempt it came from.
	res, err := e.Spin(ctx, 1, true, Metadata{})
	if err != nil {
		t.Fatalf("second spin failed: %v", err)
	}
	if res.AttemptsUsed != 2 {
		t.Fatalf("second spin has attemptsUsed = %d, want 2", res.AttemptsUsed)
	}
	w, _ := store.FindWinner(ctx, 1, 5)
	if w == nil || w.AttemptNumber != 2 {
		t.Fatalf("winner row should reference attempt 2, got %+v", w)
	}
}

func TestStatusLoggedOut(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	activeRound(store, 5)
	e := newTestEngine(store, nil)

	st, err := e.Status(ctx, 0)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !st.RequiresLogin || st.CanSpin || st.HasWon || st.AttemptsUsed != 0 {
		t.Fatalf("unexpected logged-out status: %+v", st)
	}
	if !st.Active || st.RoundID != 5 || st.MaxAttempts != MaxAttempts {
		t.Fatalf("round info missing from logged-out status: %+v", st)
	}
}

func TestStatusReflectsAttemptsAndWin(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.users[1] = leone()
	activeRound(store, 5)
	e := newTestEngine(store, nil)
	e.draw = func() string { return "Pesci" }

	if _, err := e.Spin(ctx, 1, true, Metadata{}); err != nil {
		t.Fatalf("spin failed: %v", err)
	}

	st, err := e.Status(ctx, 1)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if st.RequiresLogin || !st.CanSpin || st.AttemptsUsed != 1 || st.AttemptsLeft != 2 || st.UserSign != "Leone" {
		t.Fatalf("unexpected status: %+v", st)
	}

	e.draw = func() string { return "Leone" }
	if _, err := e.Spin(ctx, 1, true, Metadata{}); err != nil {
		t.Fatalf("winning spin failed: %v", err)
	}

	st, err = e.Status(ctx, 1)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !st.HasWon || st.WinCode == "" || st.CanSpin {
		t.Fatalf("win not reflected in status: %+v", st)
	}
}
