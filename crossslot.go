package redisring

import (
	"context"
	"errors"

	"github.com/gomodule/redigo/redis"
)

// ErrNoSuchKey is returned by the rename fallbacks when the source key
// does not exist.
var ErrNoSuchKey = errors.New("redisring: no such key")

// Renamer emulates a native rename when the source and destination keys
// hash to different slots and thus live on different nodes, where no
// single atomic command can move the value. The emulation is an
// export/import pair: the value is serialized at the source node,
// restored at the destination node, then the source is deleted.
//
// The emulation is NOT atomic. A failure after the serialization step
// can leave the destination created with the source still present, or
// the reverse; such failures are reported as *PartialRenameError
// stating which side effect is known to have happened, and are never
// retried or concealed. Concurrent writers can also observe the
// intermediate states.
type Renamer struct {
	Exec *Executor
}

type dumpResult struct {
	blob []byte
	ttl  int64 // milliseconds, 0 for no expiry
}

// export serializes the source value and its remaining TTL in one unit
// of work at the source node. It is read-only: a failure here aborts
// the rename before any mutation.
func (r *Renamer) export(ctx context.Context, src string) (*dumpResult, error) {
	v, err := r.Exec.ExecuteForKey(ctx, src, func(conn redis.Conn) (interface{}, error) {
		blob, err := redis.Bytes(conn.Do("DUMP", src))
		if err == redis.ErrNil {
			return nil, ErrNoSuchKey
		}
		if err != nil {
			return nil, err
		}
		ttl, err := redis.Int64(conn.Do("PTTL", src))
		if err != nil {
			return nil, err
		}
		if ttl < 0 {
			ttl = 0
		}
		return &dumpResult{blob: blob, ttl: ttl}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dumpResult), nil
}

// Rename moves the value at src to dst across slots. See the type
// comment for the atomicity caveats.
func (r *Renamer) Rename(ctx context.Context, src, dst string) error {
	_, err := r.rename(ctx, src, dst, false)
	return err
}

// RenameNX moves the value at src to dst across slots, only if dst does
// not already exist. It returns false, with no mutation on either node,
// when dst exists. See the type comment for the atomicity caveats.
func (r *Renamer) RenameNX(ctx context.Context, src, dst string) (bool, error) {
	return r.rename(ctx, src, dst, true)
}

func (r *Renamer) rename(ctx context.Context, src, dst string, nx bool) (bool, error) {
	dump, err := r.export(ctx, src)
	if err != nil {
		return false, err
	}

	if nx {
		exists, err := r.Exec.ExecuteForKey(ctx, dst, func(conn redis.Conn) (interface{}, error) {
			return redis.Bool(conn.Do("EXISTS", dst))
		})
		if err != nil {
			return false, err
		}
		if exists.(bool) {
			return false, nil
		}
	}

	// from here on failures can leave partial state behind
	_, err = r.Exec.ExecuteForKey(ctx, dst, func(conn redis.Conn) (interface{}, error) {
		// REPLACE keeps the plain Rename semantics; the NX existence
		// check already ran (non-atomically) above.
		return conn.Do("RESTORE", dst, dump.ttl, dump.blob, "REPLACE")
	})
	if err != nil {
		return false, &PartialRenameError{
			Source:      src,
			Destination: dst,
			// the restore reported failure, but a connection-level
			// error may hide an applied write
			DestinationCreated: false,
			SourceDeleted:      false,
			Cause:              err,
		}
	}

	_, err = r.Exec.ExecuteForKey(ctx, src, func(conn redis.Conn) (interface{}, error) {
		return conn.Do("DEL", src)
	})
	if err != nil {
		return false, &PartialRenameError{
			Source:             src,
			Destination:        dst,
			DestinationCreated: true,
			SourceDeleted:      false,
			Cause:              err,
		}
	}
	return true, nil
}
