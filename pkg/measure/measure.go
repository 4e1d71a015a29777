// Package measure implements the top-level measurement loop: draw pairs
// from the job queue, build each of the three circuits per pair, collect
// samples, derive the RTT estimate, and hand the result to the sink.
package measure

import (
	"context"
	"time"

	"github.com/iowaguy/ting-go/pkg/circuit"
	"github.com/iowaguy/ting-go/pkg/logger"
	"github.com/iowaguy/ting-go/pkg/queue"
	"github.com/iowaguy/ting-go/pkg/results"
	"github.com/iowaguy/ting-go/pkg/tingclient"
	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// consecutiveFailureNotifyThreshold is how many pair-level failures in a
// row trigger an operator notification before the counter resets.
const consecutiveFailureNotifyThreshold = 5

// Notifier is called when consecutiveFailureNotifyThreshold consecutive
// pairs have failed outright. The default implementation only logs;
// wiring an outbound channel (email, pager) is left to the embedder, the
// way the upstream notification path is.
type Notifier func(consecutiveFailures int)

// Driver runs the measurement loop for one session.
type Driver struct {
	client    *tingclient.Client
	queue     *queue.Queue
	sink      *results.Sink
	numSamples int
	log       *logger.Logger
	notify    Notifier
}

// New constructs a Driver. notify may be nil, in which case failures are
// only logged.
func New(client *tingclient.Client, q *queue.Queue, sink *results.Sink, numSamples int, log *logger.Logger, notify Notifier) *Driver {
	if notify == nil {
		notify = func(int) {}
	}
	return &Driver{client: client, queue: q, sink: sink, numSamples: numSamples, log: log.Component("measure"), notify: notify}
}

// Run drains the job queue until Next reports empty (queue closed and
// drained, or the 5s read timeout elapsed with nothing queued), or ctx
// is cancelled (SIGINT). It returns nil on either graceful exit.
func (d *Driver) Run(ctx context.Context) error {
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			d.log.Info("measurement loop cancelled")
			return nil
		default:
		}

		pair, ok := d.queue.Next()
		if !ok {
			d.log.Info("job queue drained")
			return nil
		}

		plog := d.log.Pair(pair)
		plog.Info("starting pair")

		result, err := d.measurePair(ctx, pair)
		if err != nil {
			consecutiveFailures++
			plog.Warn("pair failed", "error", err, "consecutive_failures", consecutiveFailures)
			d.recordFailure(pair, err)
			if consecutiveFailures >= consecutiveFailureNotifyThreshold {
				d.notify(consecutiveFailures)
				consecutiveFailures = 0
			}
			continue
		}
		consecutiveFailures = 0

		if err := d.sink.Append(result); err != nil {
			plog.Warn("failed to persist result", "error", err)
		}
	}
}

func (d *Driver) recordFailure(pair tingtype.RelayPair, cause error) {
	rec := results.PairResult{
		R1:        pair.R1,
		R2:        pair.R2,
		Error:     cause.Error(),
		Timestamp: time.Now(),
	}
	if err := d.sink.Append(rec); err != nil {
		d.log.Warn("failed to persist failure record", "error", err)
	}
}

// measurePair builds each of the three circuit legs in turn, collects up
// to numSamples samples on each, and derives the pair's RTT estimate. A
// circuit that exhausts its build retries aborts the whole pair.
func (d *Driver) measurePair(ctx context.Context, pair tingtype.RelayPair) (results.PairResult, error) {
	templates := d.client.TemplateGen(pair)

	samples := make(map[tingtype.Leg][]circuit.Sample)
	for _, circ := range templates.All() {
		legSamples, err := d.runLeg(ctx, circ)
		if err != nil {
			return results.PairResult{}, tingerr.Wrap(tingerr.KindCircuitBuildFailed, "leg "+circ.Leg().String()+" failed", err)
		}
		samples[circ.Leg()] = legSamples
	}

	rtt := estimateRTT(samples[tingtype.LegX], samples[tingtype.LegY], samples[tingtype.LegXY])

	return results.PairResult{
		R1:        pair.R1,
		R2:        pair.R2,
		Samples:   toResultSamples(samples),
		RTTSec:    rtt,
		Timestamp: time.Now(),
	}, nil
}

// runLeg acquires circ, takes up to numSamples samples (stopping at the
// first failed sample and keeping the ones taken before it), and always
// closes circ before returning.
func (d *Driver) runLeg(ctx context.Context, circ *circuit.Circuit) ([]circuit.Sample, error) {
	if err := circ.Acquire(ctx); err != nil {
		return nil, err
	}
	defer circ.Close()

	samples := make([]circuit.Sample, 0, d.numSamples)
	for i := 0; i < d.numSamples; i++ {
		s, err := circ.Sample()
		if err != nil {
			d.log.Leg(circ.Leg()).Warn("sample failed, ending this circuit's sampling", "error", err)
			break
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// estimateRTT computes min(xy) - min(x)/2 - min(y)/2 where each sample's
// contribution is its full round trip (outbound + inbound). Returns nil
// if any leg recorded zero samples, since the estimate is undefined
// without all three minimums.
func estimateRTT(x, y, xy []circuit.Sample) *float64 {
	minX, okX := minRoundTrip(x)
	minY, okY := minRoundTrip(y)
	minXY, okXY := minRoundTrip(xy)
	if !okX || !okY || !okXY {
		return nil
	}
	rtt := minXY - minX/2 - minY/2
	return &rtt
}

func minRoundTrip(samples []circuit.Sample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	min := samples[0].Outbound.Seconds() + samples[0].Inbound.Seconds()
	for _, s := range samples[1:] {
		rt := s.Outbound.Seconds() + s.Inbound.Seconds()
		if rt < min {
			min = rt
		}
	}
	return min, true
}

func toResultSamples(samples map[tingtype.Leg][]circuit.Sample) map[string][]results.Sample {
	out := make(map[string][]results.Sample, len(samples))
	for leg, ls := range samples {
		rs := make([]results.Sample, len(ls))
		for i, s := range ls {
			rs[i] = results.Sample{OutboundSec: s.Outbound.Seconds(), InboundSec: s.Inbound.Seconds()}
		}
		out[leg.String()] = rs
	}
	return out
}
