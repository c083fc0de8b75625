package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/afanelli-PAM/il-mondo-di-lulz/controllers/auth"
	"github.com/afanelli-PAM/il-mondo-di-lulz/controllers/users"
	"github.com/afanelli-PAM/il-mondo-di-lulz/giveaway"
	"github.com/afanelli-PAM/il-mondo-di-lulz/middleware"
)

// UsersRoutes registers the public and authenticated user endpoints.
func UsersRoutes(api *mux.Router, engine *giveaway.Engine) {
	// Login attempts: tight per-IP budget.
	loginLimiter := middleware.NewIPRateLimiter(30, 5*time.Minute)
	// Spins: the attempt cap is the real guard, this only blunts scripted
	// hammering of the endpoint.
	spinLimiter := middleware.NewIPRateLimiter(60, time.Minute)
	statusLimiter := middleware.NewIPRateLimiter(300, time.Minute)

	api.Handle("/login", loginLimiter.Middleware(http.HandlerFunc(auth.LoginHandler))).Methods(http.MethodPost)
	api.Handle("/logout", middleware.AuthMiddleware(http.HandlerFunc(auth.LogoutHandler))).Methods(http.MethodPost)

	wheel := users.NewGiveawayController(engine)
	api.Handle("/giveaway/status", statusLimiter.Middleware(http.HandlerFunc(wheel.StatusHandler))).Methods(http.MethodGet)
	api.Handle("/giveaway/spin", spinLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(wheel.SpinHandler)))).Methods(http.MethodPost)
}
