package middleware

import (
	"context"
	"net/http"

	"github.com/afanelli-PAM/il-mondo-di-lulz/database"
	"github.com/afanelli-PAM/il-mondo-di-lulz/models"
	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

// AdminAuthMiddleware verifies the request carries an admin token and that
// the admin still exists and is active.
func AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := utils.BearerToken(r)
		if !ok {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized: token mancante"})
			return
		}
		claims, err := utils.ValidateAccessToken(tokenStr)
		if err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized: token non valido"})
			return
		}
		if role, _ := claims["role"].(string); role != "admin" {
			utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Riservato agli amministratori"})
			return
		}

		adminID := utils.ClaimID(claims)
		var admin models.Admin
		if err := database.DB.First(&admin, adminID).Error; err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized: admin non trovato"})
			return
		}
		if !admin.IsActive {
			utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Account amministratore disattivato"})
			return
		}

		ctx := context.WithValue(r.Context(), utils.UserIDKey, uint(admin.ID))
		ctx = context.WithValue(ctx, utils.UserRoleKey, "admin")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
