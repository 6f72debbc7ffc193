package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/ringfs/coordinator"
	"github.com/maxpert/ringfs/hlc"
	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/notify"
	"github.com/maxpert/ringfs/replica"
	"github.com/maxpert/ringfs/store"
	"github.com/rs/zerolog/log"
)

// Quorum runs read and write rounds
type Quorum interface {
	Run(ctx context.Context, filename string, op node.OpType, content string) (coordinator.Outcome, error)
}

// Tracker is the replication daemon's file list
type Tracker interface {
	Track(filename string) *replica.Placer
	Untrack(filename string)
	Tracked() []string
}

// ReplicaLister lists the replicas held by this node
type ReplicaLister interface {
	Replicas() ([]*store.Replica, error)
}

// Watcher delivers local replica changes
type Watcher interface {
	Subscribe(filter notify.Filter) (<-chan notify.Change, func())
}

// AdminHandlers serves file operations and local replica inspection
type AdminHandlers struct {
	quorum     Quorum
	discoverer coordinator.Discoverer
	tracker    Tracker
	replicas   ReplicaLister
	changes    Watcher
	patterns   *patternCache
	timeout    time.Duration
}

// NewAdminHandlers creates a new AdminHandlers instance. timeout bounds each
// quorum round started over HTTP.
func NewAdminHandlers(quorum Quorum, discoverer coordinator.Discoverer, tracker Tracker, replicas ReplicaLister, timeout time.Duration) (*AdminHandlers, error) {
	patterns, err := newPatternCache(patternCacheSize)
	if err != nil {
		return nil, err
	}

	return &AdminHandlers{
		quorum:     quorum,
		discoverer: discoverer,
		tracker:    tracker,
		replicas:   replicas,
		patterns:   patterns,
		timeout:    timeout,
	}, nil
}

// SetWatcher enables GET /files/{name}/changes
func (h *AdminHandlers) SetWatcher(w Watcher) {
	h.changes = w
}

func (h *AdminHandlers) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}, hasMore bool) {
	response := map[string]interface{}{
		"data": data,
	}
	if hasMore {
		response["has_more"] = true
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// writeRoundError maps a failed quorum round to an HTTP status. No quorum is
// a conflict the client may retry; no coordinator means the file is
// currently unavailable.
func writeRoundError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, coordinator.ErrQuorumNotReached):
		status = http.StatusConflict
	case errors.Is(err, coordinator.ErrNoActiveNodes), errors.Is(err, coordinator.ErrCoordinatorUnreachable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}
	writeErrorResponse(w, status, err.Error())
}

// parseLimit parses limit parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 256, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}

	if limit > 1024 {
		return 0, fmt.Errorf("limit cannot exceed 1024")
	}

	return limit, nil
}

// fileParam returns the unescaped {name} segment. Filenames with slashes
// travel percent-encoded.
func fileParam(r *http.Request) (string, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		return "", fmt.Errorf("invalid file name: %w", err)
	}
	if name == "" {
		return "", fmt.Errorf("file name is required")
	}
	return name, nil
}

// formatVersion renders a replica version as ISO 8601, empty when unwritten
func formatVersion(ts hlc.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.PhysicalTime().UTC().Format(time.RFC3339Nano)
}
