package admins

import (
	"bytes"
	"encoding/csv"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/afanelli-PAM/il-mondo-di-lulz/database"
	"github.com/afanelli-PAM/il-mondo-di-lulz/giveaway"
	"github.com/afanelli-PAM/il-mondo-di-lulz/models"
	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

// GiveawayAdminController manages rounds and winner fulfillment.
type GiveawayAdminController struct {
	rounds *giveaway.RoundState
	store  *database.GiveawayStore
	db     *gorm.DB
}

func NewGiveawayAdminController(rounds *giveaway.RoundState, store *database.GiveawayStore, db *gorm.DB) *GiveawayAdminController {
	return &GiveawayAdminController{rounds: rounds, store: store, db: db}
}

// POST /admin/giveaway/start
func (c *GiveawayAdminController) StartHandler(w http.ResponseWriter, r *http.Request) {
	round, err := c.rounds.StartNewRound(r.Context())
	if err != nil {
		log.Printf("[giveaway] avvio round fallito: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Impossibile avviare un nuovo round"})
		return
	}
	log.Printf("[giveaway] round %d avviato", round.ID)
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Nuovo round avviato",
		Data:    map[string]interface{}{"active": round.Active, "roundId": round.ID},
	})
}

// POST /admin/giveaway/stop
func (c *GiveawayAdminController) StopHandler(w http.ResponseWriter, r *http.Request) {
	round, err := c.rounds.Stop(r.Context())
	if err != nil {
		log.Printf("[giveaway] stop round fallito: %v", err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Impossibile fermare il giveaway"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Giveaway fermato",
		Data:    map[string]interface{}{"active": round.Active, "roundId": round.ID},
	})
}

// GET /admin/giveaway
//
// Round state plus aggregate counters for the dashboard.
func (c *GiveawayAdminController) OverviewHandler(w http.ResponseWriter, r *http.Request) {
	round, err := c.rounds.Current(r.Context())
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
		return
	}

	var spins, winners int64
	if round.ID > 0 {
		if err := c.db.WithContext(r.Context()).Model(&models.GiveawaySpin{}).
			Where("round_id = ?", round.ID).Count(&spins).Error; err != nil {
			utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
			return
		}
		if err := c.db.WithContext(r.Context()).Model(&models.GiveawayWinner{}).
			Where("round_id = ?", round.ID).Count(&winners).Error; err != nil {
			utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "OK",
		Data: map[string]interface{}{
			"active":       round.Active,
			"roundId":      round.ID,
			"totalSpins":   spins,
			"totalWinners": winners,
			"maxAttempts":  giveaway.MaxAttempts,
		},
	})
}

// GET /admin/giveaway/winners?round_id=N (default: current round)
func (c *GiveawayAdminController) WinnersHandler(w http.ResponseWriter, r *http.Request) {
	roundID, ok := c.resolveRound(w, r)
	if !ok {
		return
	}
	rows, err := c.store.ListWinners(r.Context(), roundID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "OK",
		Data:    map[string]interface{}{"roundId": roundID, "winners": rows},
	})
}

// POST /admin/giveaway/winners/{id}/redeem
//
// Marks a winner as fulfilled. Only flips the flag forward.
func (c *GiveawayAdminController) RedeemHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Identificativo vincitore non valido"})
		return
	}
	res := c.db.WithContext(r.Context()).Model(&models.GiveawayWinner{}).
		Where("id = ? AND redeemed = ?", id, false).
		Update("redeemed", true)
	if res.Error != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Vincitore non trovato o premio gia riscattato"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Premio segnato come riscattato"})
}

// POST /admin/giveaway/export?round_id=N
//
// Writes the round's winners as CSV to the R2 bucket and returns the object
// key.
func (c *GiveawayAdminController) ExportHandler(w http.ResponseWriter, r *http.Request) {
	roundID, ok := c.resolveRound(w, r)
	if !ok {
		return
	}
	rows, err := c.store.ListWinners(r.Context(), roundID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
		return
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{"id", "user_id", "round_id", "win_code", "winning_sign", "attempt_number", "redeemed", "created_at"})
	for _, row := range rows {
		_ = cw.Write([]string{
			strconv.FormatUint(uint64(row.ID), 10),
			strconv.FormatUint(uint64(row.UserID), 10),
			strconv.Itoa(row.RoundID),
			row.WinCode,
			row.WinningSign,
			strconv.Itoa(row.AttemptNumber),
			strconv.FormatBool(row.Redeemed),
			row.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
		return
	}

	key, err := utils.UploadGiveawayReport(r.Context(), roundID, buf.Bytes())
	if err != nil {
		log.Printf("[giveaway] export round %d fallito: %v", roundID, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Export fallito, controlla la configurazione dello storage"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Report caricato",
		Data:    map[string]interface{}{"roundId": roundID, "objectKey": key, "winners": len(rows)},
	})
}

func (c *GiveawayAdminController) resolveRound(w http.ResponseWriter, r *http.Request) (int, bool) {
	if raw := r.URL.Query().Get("round_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "round_id non valido"})
			return 0, false
		}
		return id, true
	}
	round, err := c.rounds.Current(r.Context())
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Errore interno del server"})
		return 0, false
	}
	if round.ID <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Nessun round avviato finora"})
		return 0, false
	}
	return round.ID, true
}
