package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hetu-project/validator-coordinator/internal/coreerr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// kindStatus maps an error Kind to its HTTP status, per spec §6 "Status
// codes" and §7's error taxonomy.
func kindStatus(kind coreerr.Kind) int {
	switch kind {
	case coreerr.KindClientInput:
		return http.StatusUnprocessableEntity
	case coreerr.KindAuth:
		return http.StatusUnauthorized
	case coreerr.KindAuthz:
		return http.StatusForbidden
	case coreerr.KindRateLimit:
		return http.StatusTooManyRequests
	case coreerr.KindDuplicate:
		return http.StatusOK
	case coreerr.KindDispatch:
		return http.StatusConflict
	case coreerr.KindExternalTransient:
		return http.StatusBadGateway
	case coreerr.KindVerification:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// writeError categorizes err via coreerr and writes the matching status
// and structured body. Errors that aren't *coreerr.Error are treated as
// internal (5xx), never leaking their raw text to the client.
func writeError(w http.ResponseWriter, log logWarner, err error) {
	ce, ok := coreerr.As(err)
	if !ok {
		if log != nil {
			log.Warn("unclassified internal error: " + err.Error())
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   string(coreerr.KindInternal),
			Message: "internal error",
		})
		return
	}

	status := kindStatus(ce.Kind)
	writeJSON(w, status, errorResponse{
		Error:   string(ce.Kind),
		Message: ce.Message,
		Payload: ce.Payload,
	})
}

// logWarner is the minimal logging surface writeError needs, satisfied
// by *logrus.Entry.
type logWarner interface {
	Warn(args ...any)
}
