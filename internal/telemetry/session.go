package telemetry

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// sessionContext holds the opaque per-process session token and the
// monotonically increasing event sequence counter. The token is random,
// never persisted, and only ever leaves the process as a salted digest.
type sessionContext struct {
	id  string
	seq atomic.Uint64
}

func newSessionContext() *sessionContext {
	return &sessionContext{id: uuid.NewString()}
}

// next returns the next per-process sequence number, starting at 1.
func (s *sessionContext) next() uint64 {
	return s.seq.Add(1)
}
