// Package id provides ULID-based identifiers for the watchdog daemon.
//
// ULIDs sort by creation time, so report ids double as a coarse timeline in
// logs and in whatever fault collector ends up storing them. Each kind of id
// carries a short prefix to keep logs readable.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ReportID identifies one frozen-session report.
type ReportID string

// RequestID identifies an API request or a trace span.
type RequestID string

// ConnID identifies a websocket subscriber connection.
type ConnID string

const (
	ReportPrefix  = "anr"
	RequestPrefix = "req"
	ConnPrefix    = "conn"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator using crypto/rand entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic ids.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewReportID generates a new frozen report id.
func NewReportID() ReportID {
	return ReportID(Default().GenerateWithPrefix(ReportPrefix))
}

// NewRequestID generates a new request id.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewConnID generates a new connection id.
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

func (id ReportID) String() string  { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id ConnID) String() string    { return string(id) }

// Timestamp extracts the creation time of a prefixed or bare ULID string.
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ulid.Time(parsed.Time()), nil
}
