package middleware

import (
	"context"
	"net/http"

	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

// AuthMiddleware requires a valid user access token and injects user id,
// role and session jti into the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := utils.BearerToken(r)
		if !ok {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Devi essere registrato per giocare."})
			return
		}
		claims, err := utils.ValidateAccessToken(tokenStr)
		if err != nil {
			msg := "Sessione non valida. Effettua di nuovo il login."
			if err.Error() == "token expired" {
				msg = "Sessione scaduta. Effettua di nuovo il login."
			}
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: msg})
			return
		}

		role, _ := claims["role"].(string)
		// Admin tokens do not grant access to user endpoints.
		if role == "admin" {
			utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Accesso negato"})
			return
		}

		userID := utils.ClaimID(claims)
		if userID == 0 {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Sessione non valida. Effettua di nuovo il login."})
			return
		}

		jti, _ := claims["jti"].(string)
		ctx := context.WithValue(r.Context(), utils.UserIDKey, userID)
		ctx = context.WithValue(ctx, utils.UserRoleKey, role)
		ctx = context.WithValue(ctx, utils.SessionKey, jti)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
