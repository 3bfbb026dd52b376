package httpadapter

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

// recordChanged queues one record for re-indexing after a catalog edit.
// Registered only when an admin token is configured.
func (rt *Router) recordChanged(w http.ResponseWriter, r *http.Request) {
	if !isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.cfg.APIAdminToken) {
		rt.writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "record changed", errors.New("missing or invalid bearer token")))
		return
	}

	recordID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "record id must be an integer"})
		return
	}
	if err := rt.changes.NotifyRecordChanged(r.Context(), recordID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "recordId": recordID})
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1
}
