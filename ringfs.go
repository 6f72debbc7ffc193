package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/maxpert/ringfs/admin"
	"github.com/maxpert/ringfs/cfg"
	"github.com/maxpert/ringfs/cluster"
	"github.com/maxpert/ringfs/coordinator"
	ringfsgrpc "github.com/maxpert/ringfs/grpc"
	"github.com/maxpert/ringfs/hlc"
	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/notify"
	"github.com/maxpert/ringfs/replica"
	"github.com/maxpert/ringfs/ring"
	"github.com/maxpert/ringfs/store"
	"github.com/maxpert/ringfs/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("node_id", id.ReplicaID(cfg.Config.NodeID).String()).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("ringfs - quorum replicated files on a consistent-hash ring")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()
	ringfsgrpc.RegisterZstdCompressor()

	self := node.Peer{
		ID:      id.ReplicaID(cfg.Config.NodeID),
		Address: cfg.Config.Cluster.GRPCAdvertiseAddress,
	}

	st, err := openStore()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open replica store")
		return
	}
	defer st.Close()

	clock := hlc.NewClock(cfg.Config.NodeID)
	local, err := node.NewLocal(self, st, clock, nodeOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize local node")
		return
	}
	hub := notify.NewHub()
	local.SetNotifier(hub)

	table := ring.NewTable(self)
	for _, entry := range cfg.Config.Cluster.Peers {
		m, err := ring.ParseMember(entry)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid peer in configuration")
			return
		}
		if m.ID == self.ID {
			continue
		}
		table.Add(m)
	}

	client, err := ringfsgrpc.NewClient(cfg.Config.GRPCClient.MaxCachedConnections)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC client")
		return
	}
	defer client.Close()

	registry := ringfsgrpc.NewRegistry(local, table, client, ringfsgrpc.Timeouts{
		Call:     cfg.RPCTimeout(),
		LockWait: nodeOptions().LockWaitTimeout,
	})
	local.SetResolver(registry)
	lookup := ring.NewLookup(table, registry)

	n := cfg.Config.Replication.ReplicaCount
	daemon := replica.NewDaemon(self, lookup, n, cfg.DaemonInterval())
	for _, filename := range cfg.Config.Replication.Files {
		daemon.Track(filename)
	}

	discoverer := replica.NewResolver(lookup, n)
	coord := coordinator.NewCoordinator(
		discoverer,
		registry,
		id.NewHLCGenerator(clock),
		time.Duration(cfg.Config.Coordinator.ReleaseTimeoutMS)*time.Millisecond,
	)

	handlers, err := admin.NewAdminHandlers(coord, discoverer, daemon, local, requestTimeout())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize admin handlers")
		return
	}
	handlers.SetWatcher(hub)
	members := cluster.NewClusterManager(table, client, self.ID)

	server := ringfsgrpc.NewServer(ringfsgrpc.ServerConfig{
		Address:     cfg.Config.Cluster.GRPCBindAddress,
		Port:        cfg.Config.Cluster.GRPCPort,
		Handle:      local,
		HTTPHandler: admin.NewRouter(handlers, members, telemetry.GetMetricsHandler()),
	})
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start node server")
		return
	}
	defer server.Stop()

	collector := telemetry.NewMetricsCollector(local, table, 10*time.Second)
	collector.Start()
	defer collector.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon.Start(ctx)
	defer daemon.Stop()
	local.StartJanitor(ctx, nodeOptions().LockLease/2)

	log.Info().
		Str("node", self.String()).
		Int("grpc_port", cfg.Config.Cluster.GRPCPort).
		Int("peers", len(table.Members())-1).
		Int("replica_count", n).
		Str("data_dir", cfg.Config.DataDir).
		Msg("Node is operational")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
}

func openStore() (store.Store, error) {
	if cfg.Config.Storage.Engine == cfg.StorageMemory {
		log.Warn().Msg("Using in-memory replica store, replicas are lost on restart")
		return store.NewMemoryStore(), nil
	}
	return store.NewPebbleStore(filepath.Join(cfg.Config.DataDir, "replicas"))
}

func nodeOptions() node.Options {
	return node.Options{
		VoteLease:       time.Duration(cfg.Config.Coordinator.VoteLeaseSeconds) * time.Second,
		LockLease:       time.Duration(cfg.Config.Coordinator.LockLeaseSeconds) * time.Second,
		LockWaitTimeout: time.Duration(cfg.Config.Coordinator.LockWaitTimeoutMS) * time.Millisecond,
		PeerTimeout:     cfg.RPCTimeout(),
	}
}

// requestTimeout bounds an HTTP-initiated round: discovery, two polling
// rounds and an update multicast on a remote coordinator, plus a lock wait
func requestTimeout() time.Duration {
	lockWait := time.Duration(cfg.Config.Coordinator.LockWaitTimeoutMS) * time.Millisecond
	return lockWait + 8*cfg.RPCTimeout()
}
