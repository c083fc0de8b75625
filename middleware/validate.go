package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/afanelli-PAM/il-mondo-di-lulz/utils"
)

// ValidateJSON decodes the JSON payload into dst and runs the struct
// validator. On failure it writes the error response itself and returns a
// non-nil error so the handler can bail out.
func ValidateJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		utils.WriteJSON(w, http.StatusUnsupportedMediaType, utils.APIResponse{Success: false, Message: "Content-Type deve essere application/json"})
		return http.ErrNotSupported
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Body JSON non valido"})
		return err
	}
	if err := utils.ValidateStruct(dst); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Validazione fallita", Data: err.Error()})
		return err
	}
	return nil
}
