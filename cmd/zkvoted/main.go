package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/zk-anonvote/api"
	"github.com/vocdoni/zk-anonvote/config"
	"github.com/vocdoni/zk-anonvote/credential"
	"github.com/vocdoni/zk-anonvote/prover"
	"github.com/vocdoni/zk-anonvote/service"
	"github.com/vocdoni/zk-anonvote/state"
	"github.com/vocdoni/zk-anonvote/storage"
	"github.com/vocdoni/zk-anonvote/tally"
	"github.com/vocdoni/zk-anonvote/types"
	"github.com/vocdoni/zk-anonvote/util"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"
	"go.vocdoni.io/dvote/log"
)

// NodeConfig contains the configuration of the voting node.
type NodeConfig struct {
	Dir             string        `mapstructure:"dir"`
	LogLevel        string        `mapstructure:"logLevel"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Title           string        `mapstructure:"title"`
	Description     string        `mapstructure:"description"`
	Candidates      []string      `mapstructure:"candidates"`
	Scheme          string        `mapstructure:"scheme"`
	ProverKey       string        `mapstructure:"proverKey"`
	EligibilityRoot string        `mapstructure:"eligibilityRoot"`
	TallyInterval   time.Duration `mapstructure:"tallyInterval"`
	MemDB           bool          `mapstructure:"memdb"`
}

var (
	statePrefix   = []byte("state/")
	storagePrefix = []byte("node/")
)

func main() {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	flag.String("dir", filepath.Join(home, config.DefaultDataDir), "storage data directory")
	flag.String("logLevel", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flag.String("host", config.DefaultAPIHost, "host for the HTTP API")
	flag.Int("port", config.DefaultAPIPort, "network port for the HTTP API")
	flag.String("title", config.DefaultElectionTitle, "title of the election")
	flag.String("description", "", "description of the election")
	flag.StringSlice("candidates", config.DefaultCandidates, "candidates of the election (id:name[:party],...)")
	flag.String("scheme", config.DefaultCredentialScheme, "nullifier derivation scheme (poseidon, hexreversal)")
	flag.String("proverKey", "", "hexadecimal private key used by the proving service to attest votes")
	flag.String("eligibilityRoot", "", "hexadecimal root of the eligibility set to publish, usually the root of a census of this node; "+
		"empty keeps the last published root, or an open election if none")
	flag.Duration("tallyInterval", config.DefaultTallyInterval, "interval between tally snapshots")
	flag.Bool("memdb", false, "keep the ledger in memory, nothing is written to the data directory")
	flag.CommandLine.SortFlags = false
	flag.Parse()

	pviper := viper.New()
	pviper.SetConfigName("zkvoted")
	pviper.SetConfigType("yml")
	pviper.SetEnvPrefix("ZKVOTED")
	pviper.AutomaticEnv()
	pviper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := pviper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	pviper.AddConfigPath(pviper.GetString("dir"))
	_ = pviper.ReadInConfig()

	conf := NodeConfig{}
	if err := pviper.Unmarshal(&conf); err != nil {
		panic(err)
	}

	// generate a new proving key if not provided and save it, so the
	// attestations remain valid across restarts
	if conf.ProverKey == "" {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			panic(err)
		}
		conf.ProverKey = hex.EncodeToString(ethcrypto.FromECDSA(key))
		pviper.Set("proverKey", conf.ProverKey)
		if err := os.MkdirAll(conf.Dir, os.ModePerm); err != nil {
			panic(err)
		}
		if err := pviper.SafeWriteConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "could not write config file: %v\n", err)
		}
	}

	log.Init(conf.LogLevel, "stdout", nil)
	log.Infow("starting "+filepath.Base(os.Args[0]), "dir", conf.Dir, "memdb", conf.MemDB)

	if err := run(conf); err != nil {
		log.Fatal(err)
	}
}

func run(conf NodeConfig) error {
	candidates, err := types.ParseCandidates(conf.Candidates)
	if err != nil {
		return err
	}
	scheme, err := credential.ParseScheme(conf.Scheme)
	if err != nil {
		return err
	}
	proverKey, err := ethcrypto.HexToECDSA(util.TrimHex(conf.ProverKey))
	if err != nil {
		return fmt.Errorf("invalid prover key: %w", err)
	}
	var eligibilityRoot []byte
	if conf.EligibilityRoot != "" {
		if eligibilityRoot, err = types.HexStringToHexBytes(conf.EligibilityRoot); err != nil {
			return fmt.Errorf("invalid eligibility root: %w", err)
		}
	}

	var database db.Database
	if conf.MemDB {
		database = memdb.New()
	} else {
		if database, err = metadb.New(db.TypePebble, filepath.Join(conf.Dir, "db")); err != nil {
			return err
		}
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warnw("failed to close database", "error", err.Error())
		}
	}()

	proofService, err := prover.NewService(proverKey, scheme)
	if err != nil {
		return err
	}
	ledger, err := state.New(prefixeddb.NewPrefixedDatabase(database, statePrefix), state.Options{
		Candidates:      candidates,
		Verifier:        prover.NewAttestationVerifier(proofService.Address()),
		EligibilityRoot: eligibilityRoot,
	})
	if err != nil {
		return err
	}
	stg := storage.New(prefixeddb.NewPrefixedDatabase(database, storagePrefix))

	election, err := stg.Election()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		election = &storage.Election{
			Title:           conf.Title,
			Description:     conf.Description,
			Candidates:      candidates,
			EligibilityRoot: ledger.EligibilityRoot(),
		}
		if err := stg.SetElection(election); err != nil {
			return err
		}
		log.Infow("election created", "id", election.ID.String(), "title", election.Title)
	case err != nil:
		return err
	default:
		// the published root may have changed since the election was created
		if election, err = stg.SetEligibilityRoot(ledger.EligibilityRoot()); err != nil {
			return err
		}
		log.Infow("election loaded", "id", election.ID.String(), "title", election.Title,
			"eligibilityRoot", election.EligibilityRoot.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := service.NewTallyMonitor(tally.NewReader(ledger, candidates), stg, conf.TallyInterval)
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	apiService := service.NewAPI(&api.APIConfig{
		Host:       conf.Host,
		Port:       conf.Port,
		Ledger:     ledger,
		Candidates: candidates,
		Storage:    stg,
		Prover:     proofService,
	})
	if err := apiService.Start(ctx); err != nil {
		return err
	}
	defer apiService.Stop()
	log.Infow("node ready",
		"host", conf.Host,
		"port", conf.Port,
		"attester", proofService.Address().Hex(),
		"scheme", scheme.String(),
		"candidates", len(candidates))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Infow("shutting down", "votes", monitorTotal(monitor))
	return nil
}

func monitorTotal(m *service.TallyMonitor) uint64 {
	if latest := m.Latest(); latest != nil {
		return latest.Total
	}
	return 0
}
