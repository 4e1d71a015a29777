// Package queue implements the in-memory FIFO of relay pairs the
// measurement driver works through, seeded from a single CLI pair or an
// input file. There is no mode that draws pairs from the relay consensus.
package queue

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// ReadTimeout bounds how long Next blocks waiting for a pair before
// reporting the queue empty.
const ReadTimeout = 5 * time.Second

// Queue is a FIFO of relay pairs, safe for one producer and one
// consumer (the shape the measurement driver uses it in).
type Queue struct {
	pairs chan tingtype.RelayPair
}

// New constructs an empty queue with room for n buffered pairs.
func New(n int) *Queue {
	return &Queue{pairs: make(chan tingtype.RelayPair, n)}
}

// FromPair seeds a queue with a single pair, the CLI single-pair mode.
func FromPair(pair tingtype.RelayPair) *Queue {
	q := New(1)
	q.pairs <- pair
	return q
}

// FromFile seeds a queue from a file of whitespace-separated
// "R1 R2" pairs, one per line.
func FromFile(path string) (*Queue, error) {
	pairs, err := ParsePairsFile(path)
	if err != nil {
		return nil, err
	}
	return FromPairs(pairs, 1), nil
}

// ParsePairsFile reads a file of whitespace-separated "R1 R2" pairs,
// one per line, without building a queue. Used by callers that need
// the raw pair list first, e.g. to repeat it NumRepeats times.
func ParsePairsFile(path string) ([]tingtype.RelayPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tingerr.ConfigError("open input file "+path, err)
	}
	defer f.Close()

	var pairs []tingtype.RelayPair
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, tingerr.New(tingerr.KindConfig, "malformed input file line: "+line)
		}
		pairs = append(pairs, tingtype.RelayPair{
			R1: tingtype.Fingerprint(fields[0]),
			R2: tingtype.Fingerprint(fields[1]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, tingerr.ConfigError("read input file "+path, err)
	}
	return pairs, nil
}

// FromPairs seeds a queue with pairs, repeated repeats times in order
// (pairs[0..n-1], pairs[0..n-1], ...), the shape a multi-round
// measurement session uses.
func FromPairs(pairs []tingtype.RelayPair, repeats int) *Queue {
	if repeats < 1 {
		repeats = 1
	}
	q := New(len(pairs) * repeats)
	for i := 0; i < repeats; i++ {
		for _, p := range pairs {
			q.pairs <- p
		}
	}
	q.Close()
	return q
}

// Push appends a pair to the queue, blocking if the queue is full.
func (q *Queue) Push(pair tingtype.RelayPair) {
	q.pairs <- pair
}

// Close signals that no more pairs will be pushed. Safe to call once.
func (q *Queue) Close() {
	close(q.pairs)
}

// Next blocks up to ReadTimeout for the next pair. The bool return is
// false when the timeout elapses with nothing queued, or the queue was
// closed and drained — either way the driver treats it as end-of-work.
func (q *Queue) Next() (tingtype.RelayPair, bool) {
	select {
	case pair, ok := <-q.pairs:
		return pair, ok
	case <-time.After(ReadTimeout):
		return tingtype.RelayPair{}, false
	}
}
