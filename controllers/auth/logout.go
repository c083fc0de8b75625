package auth

import (
	"log"
	"net/http"
	"time"

	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

// POST /logout
//
// Revokes the current token's jti so the access token stops working before
// its natural expiry.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	jti := utils.GetSessionJTI(r)
	if jti != "" {
		if err := utils.RevokeJTI(jti, 24*time.Hour); err != nil {
			log.Printf("[auth] revoca jti fallita: %v", err)
		}
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Logout effettuato"})
}
