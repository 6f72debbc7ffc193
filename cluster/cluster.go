package cluster

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/ring"
	"github.com/rs/zerolog/log"
)

// MemberInfo represents cluster member information
type MemberInfo struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
	Status  string `json:"status"`
}

// Membership is the ring view the handlers edit
type Membership interface {
	Members() []ring.Member
	Get(rid id.ReplicaID) (ring.Member, bool)
	Add(m ring.Member)
	Remove(rid id.ReplicaID) bool
	MarkDead(rid id.ReplicaID) bool
	MarkAlive(rid id.ReplicaID) bool
}

// Disconnector drops cached connections to a member that left
type Disconnector interface {
	Disconnect(address string)
}

// ClusterManager handles cluster membership operations
type ClusterManager struct {
	table  Membership
	conns  Disconnector
	nodeID id.ReplicaID
}

// NewClusterManager creates a new cluster manager. conns may be nil.
func NewClusterManager(table Membership, conns Disconnector, nodeID id.ReplicaID) *ClusterManager {
	return &ClusterManager{
		table:  table,
		conns:  conns,
		nodeID: nodeID,
	}
}

// Routes returns the membership endpoints, relative to their mount point
func (cm *ClusterManager) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/members", cm.HandleMembers)
	r.Post("/members", cm.HandleAdd)
	r.Delete("/members/{nodeID}", cm.HandleRemove)
	r.Post("/members/{nodeID}/dead", cm.HandleMarkDead)
	r.Post("/members/{nodeID}/alive", cm.HandleMarkAlive)
	return r
}

func (cm *ClusterManager) membership() map[string]interface{} {
	members := cm.table.Members()
	infos := make([]MemberInfo, len(members))
	alive := 0
	for i, m := range members {
		infos[i] = MemberInfo{NodeID: m.ID.String(), Address: m.Address, Status: m.Status.String()}
		if m.Status == ring.StatusAlive {
			alive++
		}
	}

	return map[string]interface{}{
		"members":          infos,
		"total_membership": len(members),
		"alive_count":      alive,
		"quorum_size":      node.QuorumSize(alive),
		"local_node_id":    cm.nodeID.String(),
	}
}

// HandleMembers handles GET /cluster/members
func (cm *ClusterManager) HandleMembers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cm.membership())
}

type addRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

// HandleAdd handles POST /cluster/members. The ring position defaults to the
// hash of the address, matching how nodes derive their own.
func (cm *ClusterManager) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Address == "" {
		http.Error(w, "address is required", http.StatusBadRequest)
		return
	}

	rid := id.HashString(req.Address)
	if req.NodeID != "" {
		parsed, err := id.Parse(req.NodeID)
		if err != nil {
			http.Error(w, "invalid node_id: "+err.Error(), http.StatusBadRequest)
			return
		}
		rid = parsed
	}
	if rid == cm.nodeID {
		http.Error(w, "cannot replace the local node", http.StatusBadRequest)
		return
	}

	cm.table.Add(ring.Member{ID: rid, Address: req.Address, Status: ring.StatusAlive})

	response := cm.membership()
	response["success"] = true
	response["message"] = fmt.Sprintf("node %s added at %s", rid, req.Address)
	writeJSON(w, http.StatusOK, response)
}

// HandleRemove handles DELETE /cluster/members/{nodeID}
func (cm *ClusterManager) HandleRemove(w http.ResponseWriter, r *http.Request) {
	rid, ok := parseNodeID(w, r)
	if !ok {
		return
	}

	m, found := cm.table.Get(rid)
	if !found || !cm.table.Remove(rid) {
		http.Error(w, fmt.Sprintf("node %s cannot be removed", rid), http.StatusBadRequest)
		return
	}
	if cm.conns != nil {
		cm.conns.Disconnect(m.Address)
	}

	response := cm.membership()
	response["success"] = true
	response["message"] = fmt.Sprintf("node %s removed", rid)
	writeJSON(w, http.StatusOK, response)
}

// HandleMarkDead handles POST /cluster/members/{nodeID}/dead
func (cm *ClusterManager) HandleMarkDead(w http.ResponseWriter, r *http.Request) {
	rid, ok := parseNodeID(w, r)
	if !ok {
		return
	}

	if !cm.table.MarkDead(rid) {
		http.Error(w, fmt.Sprintf("node %s cannot be marked DEAD", rid), http.StatusBadRequest)
		return
	}
	if m, found := cm.table.Get(rid); found && cm.conns != nil {
		cm.conns.Disconnect(m.Address)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("node %s marked as DEAD", rid),
	})
}

// HandleMarkAlive handles POST /cluster/members/{nodeID}/alive
func (cm *ClusterManager) HandleMarkAlive(w http.ResponseWriter, r *http.Request) {
	rid, ok := parseNodeID(w, r)
	if !ok {
		return
	}

	if !cm.table.MarkAlive(rid) {
		http.Error(w, fmt.Sprintf("node %s is not a member", rid), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("node %s marked as ALIVE", rid),
	})
}

func parseNodeID(w http.ResponseWriter, r *http.Request) (id.ReplicaID, bool) {
	rid, err := id.Parse(chi.URLParam(r, "nodeID"))
	if err != nil {
		http.Error(w, "invalid node_id: "+err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return rid, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode cluster response")
	}
}
