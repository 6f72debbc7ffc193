package admin

import (
	"fmt"
	"net/http"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

const patternCacheSize = 128

// patternCache keeps compiled glob patterns from ?match= queries
type patternCache struct {
	cache *lru.Cache[string, glob.Glob]
}

func newPatternCache(size int) (*patternCache, error) {
	cache, err := lru.New[string, glob.Glob](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern cache: %w", err)
	}
	return &patternCache{cache: cache}, nil
}

// compile returns the glob for pattern. The empty pattern matches everything.
func (p *patternCache) compile(pattern string) (glob.Glob, error) {
	if pattern == "" {
		pattern = "*"
	}
	if g, ok := p.cache.Get(pattern); ok {
		return g, nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	p.cache.Add(pattern, g)
	return g, nil
}

type localReplica struct {
	ReplicaID string `json:"replica_id"`
	File      string `json:"file"`
	Size      int    `json:"size"`
	Version   string `json:"version,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// handleNodeReplicas handles GET /node/replicas?match=glob&limit=n
func (h *AdminHandlers) handleNodeReplicas(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.patterns.compile(r.URL.Query().Get("match"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	all, err := h.replicas.Replicas()
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]localReplica, 0, limit)
	hasMore := false
	for _, rep := range all {
		if !g.Match(rep.Filename) {
			continue
		}
		if len(out) == limit {
			hasMore = true
			break
		}
		out = append(out, localReplica{
			ReplicaID: rep.ID.String(),
			File:      rep.Filename,
			Size:      len(rep.Content),
			Version:   formatVersion(rep.Version),
			Origin:    rep.Origin,
		})
	}

	writeJSONResponse(w, out, hasMore)
}
