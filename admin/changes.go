package admin

import (
	"net/http"
	"time"

	"github.com/maxpert/ringfs/notify"
)

const (
	defaultChangeWait = 30 * time.Second
	maxChangeWait     = 5 * time.Minute
)

// handleFileChanges handles GET /files/{name}/changes?wait=30s. It blocks
// until a replica of the file held by this node changes, answering 204 when
// the wait runs out first.
func (h *AdminHandlers) handleFileChanges(w http.ResponseWriter, r *http.Request) {
	if h.changes == nil {
		writeErrorResponse(w, http.StatusNotImplemented, "change notifications are not enabled")
		return
	}

	filename, err := fileParam(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	wait := defaultChangeWait
	if s := r.URL.Query().Get("wait"); s != "" {
		wait, err = time.ParseDuration(s)
		if err != nil || wait <= 0 {
			writeErrorResponse(w, http.StatusBadRequest, "invalid wait parameter")
			return
		}
	}
	if wait > maxChangeWait {
		wait = maxChangeWait
	}

	changes, cancel := h.changes.Subscribe(notify.Filter{Files: []string{filename}})
	defer cancel()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case change, ok := <-changes:
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSONResponse(w, map[string]interface{}{
			"file":    change.Filename,
			"version": formatVersion(change.Version),
		}, false)
	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
	}
}
