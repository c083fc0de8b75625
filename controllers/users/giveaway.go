package users

import (
	"errors"
	"log"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/afanelli-PAM/il-mondo-di-lulz/giveaway"
	"github.com/afanelli-PAM/il-mondo-di-lulz/middleware"
	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

// GiveawayController exposes the wheel to the site frontend.
type GiveawayController struct {
	engine *giveaway.Engine
}

func NewGiveawayController(engine *giveaway.Engine) *GiveawayController {
	return &GiveawayController{engine: engine}
}

type spinRequest struct {
	AcceptedTerms bool `json:"acceptedTerms"`
}

// GET /giveaway/status
//
// Works for logged-out visitors too: the token is resolved best-effort and
// a missing or invalid one yields the requiresLogin shape.
func (c *GiveawayController) StatusHandler(w http.ResponseWriter, r *http.Request) {
	userID := utils.OptionalUserID(r)
	st, err := c.engine.Status(r.Context(), userID)
	if err != nil {
		log.Printf("[giveaway] status fallito user=%d: %v", userID, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore durante il caricamento dello stato giveaway."})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: st})
}

// POST /giveaway/spin
func (c *GiveawayController) SpinHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserID(r)

	var req spinRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	meta := giveaway.Metadata{
		IPAddress: middleware.ClientIP(r, nil),
		SessionID: utils.GetSessionJTI(r),
	}
	res, err := c.engine.Spin(r.Context(), userID, req.AcceptedTerms, meta)
	if err != nil {
		writeSpinError(w, userID, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: res.Message, Data: res})
}

func writeSpinError(w http.ResponseWriter, userID uint, err error) {
	var already *giveaway.AlreadyWonError
	if errors.As(err, &already) {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{
			Success: false,
			Message: "Hai gia vinto questo giveaway.",
			Data:    map[string]interface{}{"hasWon": true, "winCode": already.WinCode},
		})
		return
	}
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("[giveaway] spin fallito user=%d: %v", userID, err)
		utils.WriteJSON(w, status, utils.APIResponse{Success: false, Message: "Errore durante la giocata. Riprova tra poco."})
		return
	}
	utils.WriteJSON(w, status, utils.APIResponse{Success: false, Message: capitalize(err.Error()) + "."})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, giveaway.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, giveaway.ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, giveaway.ErrTermsNotAccepted),
		errors.Is(err, giveaway.ErrRoundInactive),
		errors.Is(err, giveaway.ErrSignUnavailable),
		errors.Is(err, giveaway.ErrAttemptsExhausted):
		return http.StatusBadRequest
	default:
		// Includes ErrConflict that survived the engine's retry.
		return http.StatusInternalServerError
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size <= 1 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
