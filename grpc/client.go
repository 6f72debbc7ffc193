package grpc

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxpert/ringfs/cfg"
	"github.com/maxpert/ringfs/encoding"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const maxMessageSize = 64 * 1024 * 1024

// Client keeps one connection per peer address. Connections are cached in an
// LRU and closed when evicted, so a ring with churn does not accumulate
// sockets to nodes that left.
type Client struct {
	mu    sync.Mutex
	conns *lru.Cache[string, *grpc.ClientConn]
}

// NewClient creates a connection cache holding at most size peers
func NewClient(size int) (*Client, error) {
	conns, err := lru.NewWithEvict[string, *grpc.ClientConn](size, func(addr string, conn *grpc.ClientConn) {
		log.Debug().Str("address", addr).Msg("Closing peer connection")
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Str("address", addr).Msg("Peer connection close failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection cache: %w", err)
	}
	return &Client{conns: conns}, nil
}

// createDialOptions returns common gRPC dial options
func createDialOptions() []grpc.DialOption {
	keepaliveTime := 10 * time.Second
	keepaliveTimeout := 3 * time.Second
	if cfg.Config != nil {
		keepaliveTime = time.Duration(cfg.Config.GRPCClient.KeepaliveTimeSeconds) * time.Second
		keepaliveTimeout = time.Duration(cfg.Config.GRPCClient.KeepaliveTimeoutSeconds) * time.Second
	}

	callOpts := []grpc.CallOption{
		grpc.CallContentSubtype(encoding.CodecName),
		grpc.MaxCallRecvMsgSize(maxMessageSize),
		grpc.MaxCallSendMsgSize(maxMessageSize),
	}
	if name := outgoingCompressor(); name != "" {
		callOpts = append(callOpts, grpc.UseCompressor(name))
	}

	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepaliveTime,
			Timeout:             keepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(callOpts...),
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor()),
	}
}

// Conn returns the cached connection to address, dialing if needed. Dialing
// is lazy: an unreachable peer surfaces on the first call, not here.
func (c *Client) Conn(address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns.Get(address); ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(address, createDialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection to %s: %w", address, err)
	}
	c.conns.Add(address, conn)

	log.Debug().Str("address", address).Msg("Opened peer connection")
	return conn, nil
}

// Disconnect closes the connection to address if one is cached
func (c *Client) Disconnect(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns.Remove(address)
}

// Len returns the number of cached connections
func (c *Client) Len() int {
	return c.conns.Len()
}

// Close closes every cached connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns.Purge()
	return nil
}
