package admin

import (
	"io"
	"net/http"

	"github.com/maxpert/ringfs/node"
	"github.com/rs/zerolog/log"
)

const maxContentBytes = 16 * 1024 * 1024

// handleListFiles handles GET /files
func (h *AdminHandlers) handleListFiles(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.tracker.Tracked(), false)
}

// handleReadFile handles GET /files/{name} with a quorum READ
func (h *AdminHandlers) handleReadFile(w http.ResponseWriter, r *http.Request) {
	filename, err := fileParam(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	out, err := h.quorum.Run(ctx, filename, node.OpRead, "")
	if err != nil {
		writeRoundError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Ringfs-Coordinator", out.Coordinator.String())
	if _, err := io.WriteString(w, out.Content); err != nil {
		log.Debug().Err(err).Str("file", filename).Msg("Failed to write read response")
	}
}

// handleWriteFile handles PUT /files/{name} with a quorum WRITE of the body
func (h *AdminHandlers) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	filename, err := fileParam(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxContentBytes))
	if err != nil {
		writeErrorResponse(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	out, err := h.quorum.Run(ctx, filename, node.OpWrite, string(body))
	if err != nil {
		writeRoundError(w, err)
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"file":         filename,
		"request_id":   out.RequestID,
		"coordinator":  out.Coordinator.String(),
		"active_nodes": out.ActiveNodes,
		"bytes":        len(body),
	}, false)
}

// handleTrackFile handles POST /files/{name}/track: the daemon starts
// maintaining the file and a first placement runs right away
func (h *AdminHandlers) handleTrackFile(w http.ResponseWriter, r *http.Request) {
	filename, err := fileParam(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	placer := h.tracker.Track(filename)
	placed, err := placer.DistributeReplicas(ctx)
	_, rids := placer.ReplicaSet()

	resp := map[string]interface{}{
		"file":     filename,
		"replicas": len(rids),
		"placed":   placed,
	}
	if err != nil {
		resp["errors"] = err.Error()
	}
	writeJSONResponse(w, resp, false)
}

// handleUntrackFile handles DELETE /files/{name}/track
func (h *AdminHandlers) handleUntrackFile(w http.ResponseWriter, r *http.Request) {
	filename, err := fileParam(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	h.tracker.Untrack(filename)
	writeJSONResponse(w, map[string]interface{}{"file": filename, "tracked": false}, false)
}

type activeNode struct {
	NodeID    string `json:"node_id"`
	Address   string `json:"address"`
	ReplicaID string `json:"replica_id"`
}

// handleFileReplicas handles GET /files/{name}/replicas: the active set a
// round started now would use
func (h *AdminHandlers) handleFileReplicas(w http.ResponseWriter, r *http.Request) {
	filename, err := fileParam(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	set := h.discoverer.DiscoverActiveNodes(ctx, filename)
	nodes := make([]activeNode, len(set))
	for i, rec := range set {
		nodes[i] = activeNode{
			NodeID:    rec.NodeID.String(),
			Address:   rec.NodeIP,
			ReplicaID: rec.ReplicaID.String(),
		}
	}

	resp := map[string]interface{}{
		"file":         filename,
		"active_nodes": nodes,
		"quorum_size":  node.QuorumSize(len(set)),
	}
	if c, ok := set.Coordinator(); ok {
		resp["coordinator"] = c.Peer().String()
	}
	writeJSONResponse(w, resp, false)
}
