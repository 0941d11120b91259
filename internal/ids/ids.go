// Package ids mints the opaque identifiers used across the orchestrator:
// tasks, agents, messages, and sessions all share the same
// {kind}_{epochMillis}_{9-char base36} shape.
package ids

import (
	"math/big"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind is the prefix segment of a generated identifier.
type Kind string

const (
	KindTask    Kind = "task"
	KindAgent   Kind = "agent"
	KindMessage Kind = "msg"
	KindSession Kind = "session"
)

// validPattern is the syntax consumers of the core must validate incoming
// identifiers against.
var validPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// monotonic breaks ties when two ids are minted within the same
// millisecond, so lexicographic ordering on the id never collides.
var monotonic uint64

// New mints a new identifier of the given kind: "{kind}_{epochMillis}_{9-char base36}".
// The random component is derived from a UUIDv4 re-encoded to base36 rather
// than a hand-rolled RNG, since uuid generation is already the entropy
// source this stack reaches for everywhere else.
func New(kind Kind) string {
	millis := time.Now().UnixMilli()
	seq := atomic.AddUint64(&monotonic, 1)
	return string(kind) + "_" + itoa(millis) + "_" + random9(seq)
}

// Valid reports whether id matches the syntax consumers must enforce.
func Valid(id string) bool {
	return id != "" && validPattern.MatchString(id)
}

func itoa(v int64) string {
	return strings.TrimSpace(new(big.Int).SetInt64(v).String())
}

// random9 produces a 9-character base36 token. It folds in seq (a
// process-local monotonic counter) so that two ids minted in the same
// millisecond never collide, even if the UUID source were ever degraded to
// a fixed value in tests.
func random9(seq uint64) string {
	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	n.Add(n, new(big.Int).SetUint64(seq))
	enc := n.Text(36)
	if len(enc) < 9 {
		enc = strings.Repeat("0", 9-len(enc)) + enc
	}
	return enc[len(enc)-9:]
}
