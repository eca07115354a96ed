package persist

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Options holds the knobs needed to build a backend archiver.
type Options struct {
	RedisAddr      string
	RedisMarkerTTL time.Duration
}

// Build constructs an Archiver for the named backend.
//
//   - "", "mock": in-process logger (default)
//   - "redis":    idempotent Redis adapter; uses a logging client when
//     opts.RedisAddr is empty so the demo runs without infrastructure
//   - "postgres": not buildable from flags alone; callers must construct
//     PostgresArchiver directly once they have a *sql.DB
func Build(backend string, opts Options) (Archiver, error) {
	switch backend {
	case "", "mock":
		return NewMockArchiver(), nil
	case "redis":
		ttl := opts.RedisMarkerTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		var evaler RedisEvaler
		if opts.RedisAddr != "" {
			evaler = NewGoRedisEvaler(opts.RedisAddr)
		} else {
			evaler = LoggingRedisEvaler{}
		}
		return NewRedisArchiver(evaler, ttl), nil
	case "postgres":
		return nil, errors.New("persist: postgres backend requires a *sql.DB; construct NewPostgresArchiver directly")
	default:
		return nil, fmt.Errorf("persist: unknown archive backend: %s", backend)
	}
}

// NewCommitID generates a random idempotency key for a single archive call.
func NewCommitID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	dst := make([]byte, 32)
	hex.Encode(dst, b[:])
	return string(dst)
}
