package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/zk-anonvote/ledger"
	"github.com/vocdoni/zk-anonvote/storage"
	"github.com/vocdoni/zk-anonvote/tally"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
)

// MaxCensusParticipants is the maximum number of commitments accepted in a
// single census participants request.
const MaxCensusParticipants = 10000

// Prover produces the proof of a vote request. It is the reference proving
// service served at GenerateProofEndpoint.
type Prover interface {
	Prove(ctx context.Context, req *types.VoteRequest) (*types.ProofArtifact, error)
}

// NullifierRooter is implemented by the ledgers that keep the consumed
// nullifiers in a merkle tree.
type NullifierRooter interface {
	NullifierRoot() ([]byte, error)
}

// APIConfig type represents the configuration for the API HTTP server.
// Ledger and Candidates are required. Without Storage the census endpoints
// are not served and the tally is read live from the ledger. Without Prover
// the proof generation endpoint is not served.
type APIConfig struct {
	Host       string
	Port       int
	Ledger     ledger.Ledger
	Candidates types.Candidates
	Storage    *storage.Storage
	Prover     Prover
}

// API type represents the API HTTP server.
type API struct {
	router     *chi.Mux
	server     *http.Server
	ledger     ledger.Ledger
	candidates types.Candidates
	storage    *storage.Storage
	prover     Prover
	tally      *tally.Reader
}

// New creates a new API instance with the given configuration. The server
// is not listening until Start is called.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Ledger == nil {
		return nil, fmt.Errorf("missing ledger instance")
	}
	if len(conf.Candidates) == 0 {
		return nil, fmt.Errorf("missing candidates")
	}
	a := &API{
		ledger:     conf.Ledger,
		candidates: conf.Candidates,
		storage:    conf.Storage,
		prover:     conf.Prover,
		tally:      tally.NewReader(conf.Ledger, conf.Candidates),
	}

	// Initialize router
	a.initRouter()
	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Start starts serving the API in the background.
func (a *API) Start() {
	go func() {
		log.Infow("starting API server", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
}

// Stop gracefully shuts down the API server.
func (a *API) Stop(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Get(MetricsEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(w, true)
	})
	log.Infow("register handler", "endpoint", CandidatesEndpoint, "method", "GET")
	a.router.Get(CandidatesEndpoint, a.getCandidates)
	log.Infow("register handler", "endpoint", TallyEndpoint, "method", "GET")
	a.router.Get(TallyEndpoint, a.getTally)

	// ledger
	log.Infow("register handler", "endpoint", NullifierEndpoint, "method", "GET")
	a.router.Get(NullifierEndpoint, a.getNullifier)
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	a.router.Post(VotesEndpoint, a.castVote)
	log.Infow("register handler", "endpoint", VoteCountEndpoint, "method", "GET")
	a.router.Get(VoteCountEndpoint, a.getVoteCount)

	if a.prover != nil {
		log.Infow("register handler", "endpoint", GenerateProofEndpoint, "method", "POST")
		a.router.Post(GenerateProofEndpoint, a.generateProof)
	}

	if a.storage != nil {
		log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
		a.router.Get(ElectionEndpoint, a.getElection)
		// census
		log.Infow("register handler", "endpoint", CensusesEndpoint, "method", "POST")
		a.router.Post(CensusesEndpoint, a.newCensus)
		log.Infow("register handler", "endpoint", CensusEndpoint, "method", "DELETE")
		a.router.Delete(CensusEndpoint, a.deleteCensus)
		log.Infow("register handler", "endpoint", CensusParticipantsEndpoint, "method", "POST")
		a.router.Post(CensusParticipantsEndpoint, a.addCensusParticipants)
		log.Infow("register handler", "endpoint", CensusRootEndpoint, "method", "GET")
		a.router.Get(CensusRootEndpoint, a.getCensusRoot)
		log.Infow("register handler", "endpoint", CensusProofEndpoint, "method", "GET")
		a.router.Get(CensusProofEndpoint, a.getCensusProof)
	}
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
