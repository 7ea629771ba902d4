package httpserver

import (
	"net/http"

	"chatsync/internal/service"
)

// handleSync returns the authoritative state a reconnecting client
// reconciles against.
func handleSync(syncSvc *service.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		snap, err := syncSvc.Snapshot(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
