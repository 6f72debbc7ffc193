package cfg

import (
	"crypto/subtle"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/maxpert/ringfs/id"
	"github.com/rs/zerolog/log"
)

// StorageEngine selects the local replica store implementation
type StorageEngine string

const (
	StoragePebble StorageEngine = "pebble" // Persistent store under data_dir
	StorageMemory StorageEngine = "memory" // Volatile, for tests and demos
)

// ClusterConfiguration controls ring membership and node-to-node communication
type ClusterConfiguration struct {
	GRPCBindAddress      string   `toml:"grpc_bind_address"`
	GRPCAdvertiseAddress string   `toml:"grpc_advertise_address"` // Address other nodes use to connect (defaults to hostname:port)
	GRPCPort             int      `toml:"grpc_port"`
	Peers                []string `toml:"peers"` // Advertise addresses of the other ring members
	ClusterSecret        string   `toml:"cluster_secret"`
}

// ReplicationConfiguration controls replica placement
type ReplicationConfiguration struct {
	ReplicaCount          int      `toml:"replica_count"`           // N replica identifiers per file
	DaemonIntervalSeconds int      `toml:"daemon_interval_seconds"` // Placement cycle interval
	Files                 []string `toml:"files"`                   // Files this node places at startup
}

// CoordinatorConfiguration controls the quorum protocol
type CoordinatorConfiguration struct {
	RPCTimeoutMS      int `toml:"rpc_timeout_ms"`       // Bound on each remote call
	ReleaseTimeoutMS  int `toml:"release_timeout_ms"`   // Bound on the release step
	LockLeaseSeconds  int `toml:"lock_lease_seconds"`   // Coordinator critical-section lease
	LockWaitTimeoutMS int `toml:"lock_wait_timeout_ms"` // Max wait to acquire the coordinator lock, 0 fails fast
	VoteLeaseSeconds  int `toml:"vote_lease_seconds"`   // How long a granted vote is held
}

// GRPCClientConfiguration controls gRPC client behavior
type GRPCClientConfiguration struct {
	KeepaliveTimeSeconds    int `toml:"keepalive_time_seconds"`    // Keepalive ping interval
	KeepaliveTimeoutSeconds int `toml:"keepalive_timeout_seconds"` // Keepalive ping timeout
	CompressionLevel        int `toml:"compression_level"`         // 0 disables zstd, 1-4 fastest..best
	MaxCachedConnections    int `toml:"max_cached_connections"`    // LRU size for peer connections
}

// StorageConfiguration controls local replica persistence
type StorageConfiguration struct {
	Engine StorageEngine `toml:"engine"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Cluster     ClusterConfiguration     `toml:"cluster"`
	Replication ReplicationConfiguration `toml:"replication"`
	Coordinator CoordinatorConfiguration `toml:"coordinator"`
	GRPCClient  GRPCClientConfiguration  `toml:"grpc_client"`
	Storage     StorageConfiguration     `toml:"storage"`
	Logging     LoggingConfiguration     `toml:"logging"`
	Prometheus  PrometheusConfiguration  `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Ring position (overrides config, 0=hash of advertise address)")
	GRPCPortFlag   = flag.Int("grpc-port", 0, "gRPC port (overrides config)")
	AdvertiseFlag  = flag.String("advertise", "", "Advertise address (overrides config)")
)

// Default configuration
var Config = &Configuration{
	NodeID:  0, // Derived from advertise address
	DataDir: "./ringfs-data",

	Cluster: ClusterConfiguration{
		GRPCBindAddress: "0.0.0.0",
		GRPCPort:        9400,
		Peers:           []string{},
	},

	Replication: ReplicationConfiguration{
		ReplicaCount:          4,
		DaemonIntervalSeconds: 3,
		Files:                 []string{},
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
		MaxCachedConnections:    64,
	},

	Storage: StorageConfiguration{
		Engine: StoragePebble,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *GRPCPortFlag != 0 {
		Config.Cluster.GRPCPort = *GRPCPortFlag
	}
	if *AdvertiseFlag != "" {
		Config.Cluster.GRPCAdvertiseAddress = *AdvertiseFlag
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// Validate checks configuration for errors and fills derived fields
func Validate() error {
	if Config.Cluster.GRPCPort < 1 || Config.Cluster.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", Config.Cluster.GRPCPort)
	}

	if Config.Cluster.GRPCAdvertiseAddress == "" {
		hostname, err := os.Hostname()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to get hostname, using localhost")
			hostname = "localhost"
		}
		Config.Cluster.GRPCAdvertiseAddress = fmt.Sprintf("%s:%d", hostname, Config.Cluster.GRPCPort)
		log.Info().
			Str("advertise_address", Config.Cluster.GRPCAdvertiseAddress).
			Msg("Auto-configured gRPC advertise address")
	}

	// A node's ring position is the hash of its advertise address unless pinned
	if Config.NodeID == 0 {
		Config.NodeID = uint64(id.Hash([]byte(Config.Cluster.GRPCAdvertiseAddress)))
		log.Info().Uint64("node_id", Config.NodeID).Msg("Derived node ID from advertise address")
	}

	if Config.Replication.ReplicaCount < 1 {
		return fmt.Errorf("replica count must be >= 1")
	}

	if Config.Replication.DaemonIntervalSeconds < 1 {
		return fmt.Errorf("daemon interval must be >= 1 second")
	}

	if Config.Coordinator.RPCTimeoutMS < 1 {
		return fmt.Errorf("coordinator rpc timeout must be >= 1ms")
	}

	if Config.Coordinator.ReleaseTimeoutMS < 1 {
		return fmt.Errorf("coordinator release timeout must be >= 1ms")
	}

	if Config.Coordinator.LockLeaseSeconds < 1 {
		return fmt.Errorf("coordinator lock lease must be >= 1 second")
	}

	if Config.Coordinator.LockWaitTimeoutMS < 0 {
		return fmt.Errorf("coordinator lock wait timeout must be >= 0")
	}

	if Config.Coordinator.VoteLeaseSeconds < 1 {
		return fmt.Errorf("coordinator vote lease must be >= 1 second")
	}

	if Config.GRPCClient.KeepaliveTimeSeconds < 1 {
		return fmt.Errorf("gRPC keepalive time must be >= 1 second")
	}

	if Config.GRPCClient.KeepaliveTimeoutSeconds < 1 {
		return fmt.Errorf("gRPC keepalive timeout must be >= 1 second")
	}

	if Config.GRPCClient.CompressionLevel < 0 || Config.GRPCClient.CompressionLevel > 4 {
		return fmt.Errorf("gRPC compression level must be between 0 and 4")
	}

	if Config.GRPCClient.MaxCachedConnections < 1 {
		return fmt.Errorf("gRPC max cached connections must be >= 1")
	}

	switch Config.Storage.Engine {
	case StoragePebble, StorageMemory:
	default:
		return fmt.Errorf("invalid storage engine: %s", Config.Storage.Engine)
	}

	return nil
}

// IsClusterAuthEnabled reports whether peers must present the cluster secret
func IsClusterAuthEnabled() bool {
	return Config != nil && Config.Cluster.ClusterSecret != ""
}

// MatchClusterSecret reports whether provided equals the cluster secret.
// Always true when auth is disabled.
func MatchClusterSecret(provided string) bool {
	if !IsClusterAuthEnabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(Config.Cluster.ClusterSecret)) == 1
}

// GetClusterSecret returns the configured cluster secret
func GetClusterSecret() string {
	if Config == nil {
		return ""
	}
	return Config.Cluster.ClusterSecret
}

// RPCTimeout returns the per-call bound for remote node operations
func RPCTimeout() time.Duration {
	return time.Duration(Config.Coordinator.RPCTimeoutMS) * time.Millisecond
}

// DaemonInterval returns the placement cycle interval
func DaemonInterval() time.Duration {
	return time.Duration(Config.Replication.DaemonIntervalSeconds) * time.Second
}
