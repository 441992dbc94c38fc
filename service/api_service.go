package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/zk-anonvote/api"
	"go.vocdoni.io/dvote/log"
)

// shutdownTimeout is the time given to the API server to finish the
// requests in flight when stopping.
const shutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	conf api.APIConfig
	api  *api.API
	mu   sync.Mutex
}

// NewAPI creates a new APIService instance with the configuration provided.
func NewAPI(conf *api.APIConfig) *APIService {
	return &APIService{conf: *conf}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(_ context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}
	a, err := api.New(&as.conf)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	a.Start()
	as.api = a
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := as.api.Stop(ctx); err != nil {
		log.Warnw("failed to stop API server", "error", err.Error())
	}
	as.api = nil
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.conf.Host, as.conf.Port
}
