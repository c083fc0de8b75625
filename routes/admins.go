package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/afanelli-PAM/il-mondo-di-lulz/controllers/admins"
	"github.com/afanelli-PAM/il-mondo-di-lulz/database"
	"github.com/afanelli-PAM/il-mondo-di-lulz/giveaway"
	"github.com/afanelli-PAM/il-mondo-di-lulz/middleware"
)

// AdminsRoutes registers the administrative endpoints.
func AdminsRoutes(api *mux.Router, rounds *giveaway.RoundState, store *database.GiveawayStore, db *gorm.DB) {
	adminLoginLimiter := middleware.NewIPRateLimiter(10, 5*time.Minute)

	api.Handle("/admin/login", adminLoginLimiter.Middleware(http.HandlerFunc(admins.LoginHandler))).Methods(http.MethodPost)

	ctl := admins.NewGiveawayAdminController(rounds, store, db)
	adm := func(h http.HandlerFunc) http.Handler {
		return middleware.AdminAuthMiddleware(h)
	}
	api.Handle("/admin/giveaway", adm(ctl.OverviewHandler)).Methods(http.MethodGet)
	api.Handle("/admin/giveaway/start", adm(ctl.StartHandler)).Methods(http.MethodPost)
	api.Handle("/admin/giveaway/stop", adm(ctl.StopHandler)).Methods(http.MethodPost)
	api.Handle("/admin/giveaway/winners", adm(ctl.WinnersHandler)).Methods(http.MethodGet)
	api.Handle("/admin/giveaway/winners/{id:[0-9]+}/redeem", adm(ctl.RedeemHandler)).Methods(http.MethodPost)
	api.Handle("/admin/giveaway/export", adm(ctl.ExportHandler)).Methods(http.MethodPost)
}
