package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocdoni/zk-anonvote/storage"
	"github.com/vocdoni/zk-anonvote/tally"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
)

// TallyMonitor represents a service that polls the tally of the ledger on a
// fixed interval, keeps the latest snapshot and stores every snapshot in the
// storage, if any.
type TallyMonitor struct {
	reader   *tally.Reader
	storage  *storage.Storage
	interval time.Duration
	latest   atomic.Pointer[types.TallyState]
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTallyMonitor creates a new TallyMonitor service. The storage is
// optional.
func NewTallyMonitor(reader *tally.Reader, stg *storage.Storage, interval time.Duration) *TallyMonitor {
	return &TallyMonitor{
		reader:   reader,
		storage:  stg,
		interval: interval,
	}
}

// Start begins polling the tally. It returns an error if the service is
// already running.
func (tm *TallyMonitor) Start(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	tm.cancel = cancel
	tm.done = make(chan struct{})
	go tm.monitorTally(tm.reader.Poll(ctx, tm.interval), tm.done)
	return nil
}

// Stop halts the monitoring service and waits for it to exit.
func (tm *TallyMonitor) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.cancel != nil {
		tm.cancel()
		<-tm.done
		tm.cancel = nil
	}
}

// Latest returns the latest tally snapshot, or nil if none has been read.
func (tm *TallyMonitor) Latest() *types.TallyState {
	return tm.latest.Load()
}

func (tm *TallyMonitor) monitorTally(snapshots <-chan *types.TallyState, done chan<- struct{}) {
	defer close(done)
	for snapshot := range snapshots {
		previous := tm.latest.Swap(snapshot)
		if previous == nil || previous.Total != snapshot.Total {
			log.Infow("tally updated", "total", snapshot.Total)
		}
		if tm.storage == nil {
			continue
		}
		if err := tm.storage.PushTally(snapshot); err != nil {
			log.Warnw("failed to store tally", "error", err.Error())
		}
	}
}
