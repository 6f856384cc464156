// Package busconn resolves a config.BusConfig into a live connection on one
// of the four bus backends (wsbus, redisbus, legacy tcpbus, natsbus). It is
// the client-side counterpart the cmd/ entrypoints use to reach whichever
// bus transport an operator configured via BUS_BACKEND, mirroring the
// teacher's main.go pattern of a single startup switch that wires concrete
// collaborators behind the package's narrow interfaces.
package busconn

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ivis-core/internal/bus"
	"ivis-core/internal/bus/legacy/tcpbus"
	"ivis-core/internal/bus/natsbus"
	"ivis-core/internal/bus/redisbus"
	"ivis-core/internal/bus/wsbus"
	"ivis-core/internal/config"
)

// Conn is a bus connection scoped to publishing and subscribing on a single
// topic, the common shape every backend can provide even though wsbus and
// tcpbus are natively single-topic while redisbus and natsbus multiplex
// many topics over one underlying client.
type Conn interface {
	bus.Publisher
	Subscribe(ctx context.Context, topic string) (*bus.Subscription, error)
	Close() error
}

// redisConn and natsConn adapt the multi-topic backends to Conn by embedding
// them; they do not record the topic they were dialed for, so Publish and
// Subscribe accept any topic.
type redisConn struct {
	*redisbus.Bus
}

type natsConn struct {
	*natsbus.Bus
}

// Dial resolves cfg.Backend and returns a Conn scoped to topic. Each call
// opens its own underlying client connection; an operator consolidating many
// topics onto one shared redis/nats client should dial once and wrap the
// result instead of calling Dial per topic, but per-topic dialing keeps this
// helper uniform across all four backends and matches how ingestion,
// detection, and liveview each only ever need one or two topics.
func Dial(ctx context.Context, cfg config.BusConfig, topic string) (Conn, error) {
	switch cfg.Backend {
	case "ws":
		conn, err := wsbus.Dial(ctx, cfg.Addr, topic, cfg.AuthToken)
		if err != nil {
			return nil, fmt.Errorf("busconn: dial ws bus: %w", err)
		}
		return conn, nil
	case "tcp":
		conn, err := tcpbus.Dial(cfg.Addr, topic)
		if err != nil {
			return nil, fmt.Errorf("busconn: dial tcp bus: %w", err)
		}
		return conn, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
		return redisConn{redisbus.New(client, cfg.RedisGroup)}, nil
	case "nats":
		b, err := natsbus.Connect(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("busconn: dial nats bus: %w", err)
		}
		return natsConn{b}, nil
	default:
		return nil, fmt.Errorf("busconn: unsupported bus backend %q", cfg.Backend)
	}
}

// Close closes the underlying nats connection.
func (c natsConn) Close() error { return c.Bus.Close() }

var _ Conn = redisConn{}
var _ Conn = natsConn{}
