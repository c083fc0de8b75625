package admins

import (
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/afanelli-PAM/il-mondo-di-lulz/database"
	"github.com/afanelli-PAM/il-mondo-di-lulz/middleware"
	"github.com/afanelli-PAM/il-mondo-di-lulz/models"
	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,pwdmin"`
}

// POST /admin/login
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	var admin models.Admin
	err := database.DB.Where("username = ? AND is_active = ?", req.Username, true).First(&admin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Credenziali non valide"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
		return
	}
	if !admin.ValidatePassword(req.Password) {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Credenziali non valide"})
		return
	}

	// Shorter expiry than user tokens: admin sessions are more sensitive.
	expiry := 6 * time.Hour
	token, err := utils.GenerateAccessToken(uint(admin.ID), "admin", expiry)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Login fallito, riprova"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Login effettuato",
		Data: map[string]interface{}{
			"access_token":  token,
			"access_expire": time.Now().Add(expiry).UTC().Format(time.RFC3339),
			"admin":         map[string]interface{}{"id": admin.ID, "username": admin.Username, "name": admin.Name},
		},
	})
}
