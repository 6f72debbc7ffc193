package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maxpert/ringfs/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Configuration {
	return &Configuration{
		NodeID:  1,
		DataDir: "./test-data",
		Cluster: ClusterConfiguration{
			GRPCPort:             9400,
			GRPCAdvertiseAddress: "node-1:9400",
		},
		Replication: ReplicationConfiguration{
			ReplicaCount:          4,
			DaemonIntervalSeconds: 3,
		},
		Coordinator: CoordinatorConfiguration{
			RPCTimeoutMS:      2000,
			ReleaseTimeoutMS:  2000,
			LockLeaseSeconds:  30,
			LockWaitTimeoutMS: 5000,
			VoteLeaseSeconds:  10,
		},
		GRPCClient: GRPCClientConfiguration{
			KeepaliveTimeSeconds:    10,
			KeepaliveTimeoutSeconds: 3,
			CompressionLevel:        1,
			MaxCachedConnections:    8,
		},
		Storage: StorageConfiguration{
			Engine: StorageMemory,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	require.NoError(t, Validate())
}

func TestValidate_InvalidGRPCPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	for _, port := range []int{-1, 0, 70000} {
		Config = validConfig()
		Config.Cluster.GRPCPort = port
		assert.Error(t, Validate(), "port %d should be rejected", port)
	}
}

func TestValidate_Rejects(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []struct {
		name   string
		mutate func(c *Configuration)
	}{
		{"zero replicas", func(c *Configuration) { c.Replication.ReplicaCount = 0 }},
		{"zero daemon interval", func(c *Configuration) { c.Replication.DaemonIntervalSeconds = 0 }},
		{"zero rpc timeout", func(c *Configuration) { c.Coordinator.RPCTimeoutMS = 0 }},
		{"zero release timeout", func(c *Configuration) { c.Coordinator.ReleaseTimeoutMS = 0 }},
		{"zero lock lease", func(c *Configuration) { c.Coordinator.LockLeaseSeconds = 0 }},
		{"negative lock wait", func(c *Configuration) { c.Coordinator.LockWaitTimeoutMS = -1 }},
		{"zero vote lease", func(c *Configuration) { c.Coordinator.VoteLeaseSeconds = 0 }},
		{"compression out of range", func(c *Configuration) { c.GRPCClient.CompressionLevel = 9 }},
		{"no cached connections", func(c *Configuration) { c.GRPCClient.MaxCachedConnections = 0 }},
		{"unknown storage", func(c *Configuration) { c.Storage.Engine = "badger" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Config = validConfig()
			tt.mutate(Config)
			assert.Error(t, Validate())
		})
	}
}

func TestValidate_DerivesNodeIDFromAdvertiseAddress(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.NodeID = 0
	require.NoError(t, Validate())

	assert.Equal(t, uint64(id.Hash([]byte("node-1:9400"))), Config.NodeID)
}

func TestValidate_KeepsPinnedNodeID(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.NodeID = 42
	require.NoError(t, Validate())
	assert.Equal(t, uint64(42), Config.NodeID)
}

func TestLoad_NonExistentFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tempDir := filepath.Join(t.TempDir(), "data")
	Config = validConfig()
	Config.DataDir = tempDir

	require.NoError(t, Load("non-existent-file.toml"))

	_, err := os.Stat(tempDir)
	assert.NoError(t, err, "data dir should be created")
}

func TestLoad_DecodesFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
data_dir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"

[cluster]
grpc_port = 9500
peers = ["a:9500", "b:9500"]

[replication]
replica_count = 3
files = ["doc.txt"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	Config = validConfig()
	require.NoError(t, Load(path))

	assert.Equal(t, 9500, Config.Cluster.GRPCPort)
	assert.Equal(t, []string{"a:9500", "b:9500"}, Config.Cluster.Peers)
	assert.Equal(t, 3, Config.Replication.ReplicaCount)
	assert.Equal(t, []string{"doc.txt"}, Config.Replication.Files)
}

func TestMatchClusterSecret(t *testing.T) {
	orig := Config.Cluster.ClusterSecret
	defer func() { Config.Cluster.ClusterSecret = orig }()

	Config.Cluster.ClusterSecret = ""
	assert.True(t, MatchClusterSecret("anything"))

	Config.Cluster.ClusterSecret = "s3cret"
	assert.True(t, MatchClusterSecret("s3cret"))
	assert.False(t, MatchClusterSecret("s3cre"))
	assert.False(t, MatchClusterSecret(""))
}
