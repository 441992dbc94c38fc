// Package tally reads the vote counts of the configured candidates from the
// ledger.
package tally

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/vocdoni/zk-anonvote/ledger"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseDelay is the first delay between retries of a count.
	DefaultBaseDelay = 200 * time.Millisecond
	// DefaultMaxDelay caps the delay between retries of a count.
	DefaultMaxDelay = 5 * time.Second
	// DefaultMaxRetries is the number of retries of a count on a transient
	// ledger failure.
	DefaultMaxRetries = 5
)

// Reader reads tally snapshots from a ledger.
type Reader struct {
	ledger     ledger.Ledger
	candidates types.Candidates
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries uint64
}

// NewReader returns a Reader of the counts of the candidates in the ledger
// provided.
func NewReader(l ledger.Ledger, candidates types.Candidates) *Reader {
	return &Reader{
		ledger:     l,
		candidates: candidates,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		maxRetries: DefaultMaxRetries,
	}
}

// SetBackoff configures the retries of the counts on transient ledger
// failures.
func (r *Reader) SetBackoff(base, max time.Duration, retries uint64) {
	r.baseDelay = base
	r.maxDelay = max
	r.maxRetries = retries
}

// Candidates returns the candidates the reader counts.
func (r *Reader) Candidates() types.Candidates {
	return r.candidates
}

// Read fetches the counts of every candidate concurrently and returns the
// snapshot. If a count cannot be read the whole snapshot fails.
func (r *Reader) Read(ctx context.Context) (*types.TallyState, error) {
	ids := r.candidates.IDs()
	counts := make([]uint64, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			count, err := r.count(gctx, id)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", id, err)
			}
			counts[i] = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tally := &types.TallyState{
		Counts:    make(map[uint32]uint64, len(ids)),
		UpdatedAt: time.Now(),
	}
	for i, id := range ids {
		tally.Counts[id] = counts[i]
		tally.Total += counts[i]
	}
	return tally, nil
}

// count reads the votes of a candidate, retrying the transient failures with
// a capped exponential backoff.
func (r *Reader) count(ctx context.Context, candidateID uint32) (uint64, error) {
	backoff := retry.NewExponential(r.baseDelay)
	backoff = retry.WithCappedDuration(r.maxDelay, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(r.maxRetries, backoff)

	var count uint64
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := r.ledger.VoteCount(ctx, candidateID)
		if err != nil {
			if types.Retryable(err) {
				log.Debugw("retrying vote count", "candidate", candidateID, "error", err.Error())
				return retry.RetryableError(err)
			}
			return err
		}
		count = c
		return nil
	})
	return count, err
}

// Poll reads a snapshot right away and then on every interval, until the
// context is done. The snapshots are sent to the returned channel, which is
// closed on exit. Snapshots the consumer is not ready to receive are
// dropped, so a slow consumer never blocks the reads. Failed reads are
// logged and skipped.
func (r *Reader) Poll(ctx context.Context, interval time.Duration) <-chan *types.TallyState {
	if interval <= 0 {
		interval = types.DefaultTallyInterval
	}
	ch := make(chan *types.TallyState, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			r.publish(ctx, ch)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

func (r *Reader) publish(ctx context.Context, ch chan<- *types.TallyState) {
	tally, err := r.Read(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warnw("failed to read tally", "error", err.Error())
		}
		return
	}
	select {
	case ch <- tally:
	default:
		log.Debugw("tally snapshot dropped, consumer busy", "total", tally.Total)
	}
}
