package submitter

import (
	"errors"

	"github.com/VictoriaMetrics/metrics"
	"github.com/vocdoni/zk-anonvote/types"
)

var (
	acceptedVotes  = metrics.NewCounter(`zkanonvote_submissions_total{outcome="accepted"}`)
	rejectedVotes  = metrics.NewCounter(`zkanonvote_submissions_total{outcome="rejected"}`)
	duplicateVotes = metrics.NewCounter(`zkanonvote_submissions_total{outcome="duplicate"}`)
	pendingVotes   = metrics.NewCounter(`zkanonvote_submissions_total{outcome="pending"}`)
	failedVotes    = metrics.NewCounter(`zkanonvote_submissions_total{outcome="failed"}`)
	awaitDuration  = metrics.NewSummary(`zkanonvote_submission_await_seconds`)
)

// countOutcome updates the submission counters. Duplicates are counted apart
// from the other rejections, whether the pre-check or the ledger found them.
func countOutcome(o *Outcome) {
	switch o.Status {
	case StatusAccepted:
		acceptedVotes.Inc()
	case StatusAlreadyVoted:
		duplicateVotes.Inc()
	case StatusRejected:
		if errors.Is(o.Err, types.ErrDuplicateVote) {
			duplicateVotes.Inc()
			return
		}
		rejectedVotes.Inc()
	case StatusPending:
		pendingVotes.Inc()
	default:
		failedVotes.Inc()
	}
}
