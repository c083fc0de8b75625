package auth

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/afanelli-PAM/il-mondo-di-lulz/database"
	"github.com/afanelli-PAM/il-mondo-di-lulz/middleware"
	"github.com/afanelli-PAM/il-mondo-di-lulz/models"
	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,emailok"`
	Password string `json:"password" validate:"required,pwdmin"`
}

// POST /login
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	var user models.User
	if err := database.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Email o password errati"})
			return
		}
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Email o password errati"})
		return
	}

	expiry := 24 * time.Hour
	token, err := utils.GenerateAccessToken(user.ID, "user", expiry)
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
			"user": map[string]interface{}{
				"id":             user.ID,
				"nome":           user.Nome,
				"email":          user.Email,
				"email_verified": user.EmailVerified,
			},
		},
	})
}
