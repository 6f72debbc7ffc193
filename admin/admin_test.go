package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maxpert/ringfs/cfg"
	"github.com/maxpert/ringfs/cluster"
	"github.com/maxpert/ringfs/coordinator"
	"github.com/maxpert/ringfs/hlc"
	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/notify"
	"github.com/maxpert/ringfs/replica"
	"github.com/maxpert/ringfs/ring"
	"github.com/maxpert/ringfs/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type singleNode struct {
	local  *node.Local
	daemon *replica.Daemon
	hub    *notify.Hub
	router http.Handler
}

func newSingleNode(t *testing.T) *singleNode {
	t.Helper()

	self := node.Peer{ID: 1000, Address: "127.0.0.1:9400"}
	local, err := node.NewLocal(self, store.NewMemoryStore(), hlc.NewClock(1000), node.DefaultOptions())
	require.NoError(t, err)

	hub := notify.NewHub()
	local.SetNotifier(hub)

	resolver := node.NewMemoryResolver()
	resolver.Register(local)
	local.SetResolver(resolver)

	table := ring.NewTable(self)
	lookup := ring.NewLookup(table, resolver)
	daemon := replica.NewDaemon(self, lookup, 4, time.Hour)
	discoverer := replica.NewResolver(lookup, 4)
	coord := coordinator.NewCoordinator(discoverer, resolver, id.NewHLCGenerator(local.Clock()), time.Second)

	handlers, err := NewAdminHandlers(coord, discoverer, daemon, local, time.Second)
	require.NoError(t, err)
	handlers.SetWatcher(hub)
	members := cluster.NewClusterManager(table, nil, self.ID)

	return &singleNode{
		local:  local,
		daemon: daemon,
		hub:    hub,
		router: NewRouter(handlers, members, http.NotFoundHandler()),
	}
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestFiles_TrackWriteRead(t *testing.T) {
	n := newSingleNode(t)

	rec := serve(n.router, http.MethodPost, "/files/doc.txt/track", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)["data"].(map[string]interface{})
	assert.EqualValues(t, 4, data["placed"])
	assert.Equal(t, []string{"doc.txt"}, n.daemon.Tracked())

	rec = serve(n.router, http.MethodPut, "/files/doc.txt", "hello")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(n.router, http.MethodGet, "/files/doc.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, n.local.Peer().String(), rec.Header().Get("X-Ringfs-Coordinator"))

	rec = serve(n.router, http.MethodGet, "/files", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"doc.txt"}, decodeData(t, rec)["data"])
}

func TestFiles_EscapedName(t *testing.T) {
	n := newSingleNode(t)

	rec := serve(n.router, http.MethodPost, "/files/a%2Fb.txt/track", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a/b.txt"}, n.daemon.Tracked())
}

func TestFiles_UnknownFileIsUnavailable(t *testing.T) {
	n := newSingleNode(t)

	rec := serve(n.router, http.MethodGet, "/files/missing.txt", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeData(t, rec)["error"], "no active nodes")
}

func TestFiles_ActiveSet(t *testing.T) {
	n := newSingleNode(t)
	serve(n.router, http.MethodPost, "/files/doc.txt/track", "")

	rec := serve(n.router, http.MethodGet, "/files/doc.txt/replicas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)["data"].(map[string]interface{})

	// Four slots on a single node collapse to one active record
	assert.Len(t, data["active_nodes"], 1)
	assert.EqualValues(t, 1, data["quorum_size"])
	assert.Equal(t, n.local.Peer().String(), data["coordinator"])
}

func TestFiles_Untrack(t *testing.T) {
	n := newSingleNode(t)
	serve(n.router, http.MethodPost, "/files/doc.txt/track", "")

	rec := serve(n.router, http.MethodDelete, "/files/doc.txt/track", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, n.daemon.Tracked())
}

func TestNodeReplicas_GlobAndLimit(t *testing.T) {
	n := newSingleNode(t)
	serve(n.router, http.MethodPost, "/files/doc.txt/track", "")
	serve(n.router, http.MethodPost, "/files/img.png/track", "")

	rec := serve(n.router, http.MethodGet, "/node/replicas?match=*.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeData(t, rec)["data"].([]interface{})
	require.Len(t, items, 4)
	for _, it := range items {
		assert.Equal(t, "doc.txt", it.(map[string]interface{})["file"])
	}

	rec = serve(n.router, http.MethodGet, "/node/replicas?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeData(t, rec)
	assert.Len(t, out["data"], 3)
	assert.Equal(t, true, out["has_more"])

	rec = serve(n.router, http.MethodGet, "/node/replicas?match=[", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(n.router, http.MethodGet, "/node/replicas?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFiles_ChangesLongPoll(t *testing.T) {
	n := newSingleNode(t)
	serve(n.router, http.MethodPost, "/files/doc.txt/track", "")

	rec := serve(n.router, http.MethodGet, "/files/doc.txt/changes?wait=20ms", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- serve(n.router, http.MethodGet, "/files/doc.txt/changes?wait=5s", "")
	}()

	require.Eventually(t, func() bool { return n.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	rec = serve(n.router, http.MethodPut, "/files/doc.txt", "v2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	select {
	case rec = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("long poll did not return")
	}
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "doc.txt", data["file"])
	assert.NotEmpty(t, data["version"])

	rec = serve(n.router, http.MethodGet, "/files/doc.txt/changes?wait=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFiles_ChangesDisabled(t *testing.T) {
	handlers, err := NewAdminHandlers(fakeQuorum{}, nil, nil, nil, 0)
	require.NoError(t, err)

	rec := serve(NewRouter(handlers, nil, nil), http.MethodGet, "/files/doc.txt/changes", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

type fakeQuorum struct {
	err error
}

func (f fakeQuorum) Run(_ context.Context, filename string, op node.OpType, _ string) (coordinator.Outcome, error) {
	return coordinator.Outcome{Filename: filename, Op: op}, f.err
}

func TestWriteRoundError_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no quorum", &coordinator.QuorumNotAchievedError{Op: node.OpWrite, Filename: "f", ActiveNodes: 3, Required: 2}, http.StatusConflict},
		{"no active nodes", fmt.Errorf("%w: f", coordinator.ErrNoActiveNodes), http.StatusServiceUnavailable},
		{"coordinator down", fmt.Errorf("%w: x", coordinator.ErrCoordinatorUnreachable), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handlers, err := NewAdminHandlers(fakeQuorum{err: tc.err}, nil, nil, nil, 0)
			require.NoError(t, err)
			router := NewRouter(handlers, nil, nil)

			rec := serve(router, http.MethodPut, "/files/f", "x")
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	orig := cfg.Config.Cluster.ClusterSecret
	cfg.Config.Cluster.ClusterSecret = "s3cret"
	defer func() { cfg.Config.Cluster.ClusterSecret = orig }()

	n := newSingleNode(t)

	rec := serve(n.router, http.MethodGet, "/files", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set(SecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	n.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/cluster/members", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	n.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/node/replicas", nil)
	req.Header.Set("Authorization", "Basic s3cret")
	rec = httptest.NewRecorder()
	n.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
