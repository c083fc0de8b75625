package giveaway

import "errors"

// Failure modes of the spin pipeline. Handlers map these onto HTTP status
// codes; everything not listed here is treated as a persistence failure.
var (
	ErrUnauthorized      = errors.New("devi essere registrato per giocare")
	ErrTermsNotAccepted  = errors.New("devi accettare le condizioni di gioco prima di girare la ruota")
	ErrRoundInactive     = errors.New("giveaway non attivo al momento")
	ErrEmailNotVerified  = errors.New("per partecipare devi prima confermare l'indirizzo email")
	ErrSignUnavailable   = errors.New("segno zodiacale non disponibile nel profilo utente")
	ErrAttemptsExhausted = errors.New("hai terminato i 3 tentativi disponibili per questo giveaway")

	// ErrConflict signals that a concurrent writer took the same attempt
	// number. Nothing is committed when it fires, so the engine safely
	// retries the spin once, then the caller sees a generic transient
	// failure.
	ErrConflict = errors.New("conflitto di scrittura concorrente")
)

// AlreadyWonError rejects a spin from a user who already holds a winner
// record for the round, carrying the code issued back then.
type AlreadyWonError struct {
	WinCode string
}

func (e *AlreadyWonError) Error() string {
	return "hai gia vinto questo giveaway"
}
