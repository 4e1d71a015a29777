// Package results implements the append-only JSON-lines sink every
// completed PairResult is written to.
package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// Sample is the JSON-serializable form of one round-trip measurement.
type Sample struct {
	OutboundSec float64 `json:"outbound_s"`
	InboundSec  float64 `json:"inbound_s"`
}

// PairResult is one measured pair's full record: per-leg samples, the
// derived RTT estimate, and an optional error when the pair failed
// outright (a circuit never built).
type PairResult struct {
	R1        tingtype.Fingerprint    `json:"r1"`
	R2        tingtype.Fingerprint    `json:"r2"`
	Samples   map[string][]Sample     `json:"samples"`
	RTTSec    *float64                `json:"rtt_s,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Sink is an append-only JSON-lines writer rooted at one directory, one
// file per day. Forced fsync after every write bounds data loss to the
// in-flight pair on a crash.
type Sink struct {
	dir string
	mu  sync.Mutex
}

// NewSink constructs a Sink rooted at dir, creating it if necessary.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tingerr.ConfigError("create results directory "+dir, err)
	}
	return &Sink{dir: dir}, nil
}

// pathForDay returns results/YYYY-MM-DD.json for the given time.
func (s *Sink) pathForDay(t time.Time) string {
	return filepath.Join(s.dir, t.Format("2006-01-02")+".json")
}

// Append serializes result as one JSON line and force-flushes it to
// disk. Safe for concurrent use.
func (s *Sink) Append(result PairResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(result)
	if err != nil {
		return tingerr.Wrap(tingerr.KindDecodeError, "marshal pair result", err)
	}
	line = append(line, '\n')

	path := s.pathForDay(result.Timestamp)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return tingerr.Wrap(tingerr.KindShutdownError, "open results file "+path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return tingerr.Wrap(tingerr.KindShutdownError, "write result line", err)
	}
	return f.Sync()
}
