package grpc

import (
	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
)

// Node service payloads. They travel as msgpack, so field names are the wire
// contract and must stay stable across releases.

type Empty struct{}

type ReplicaKeyRequest struct {
	ReplicaID id.ReplicaID
}

type MaterializeRequest struct {
	ReplicaID id.ReplicaID
	Filename  string
	Content   string
}

type MetadataResponse struct {
	Records map[id.ReplicaID]node.Record
}

// RecordRequest carries the per-node record of a quorum round
type RecordRequest struct {
	Record node.Record
}

// RoundRequest carries a record together with the round's active set
type RoundRequest struct {
	Record node.Record
	Set    node.ActiveSet
}

type BoolResponse struct {
	Value bool
}

type ContentResponse struct {
	Content string
}
