package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/zk-anonvote/api/client"
	"github.com/vocdoni/zk-anonvote/ballot"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/config"
	"github.com/vocdoni/zk-anonvote/credential"
	"github.com/vocdoni/zk-anonvote/ledger"
	"github.com/vocdoni/zk-anonvote/prover"
	"github.com/vocdoni/zk-anonvote/submitter"
	"github.com/vocdoni/zk-anonvote/types"
	"github.com/vocdoni/zk-anonvote/util"
	"github.com/vocdoni/zk-anonvote/voter"
	"github.com/vocdoni/zk-anonvote/web3"
	"go.vocdoni.io/dvote/log"
)

// VoterConfig contains the configuration of a vote attempt.
type VoterConfig struct {
	LogLevel     string        `mapstructure:"logLevel"`
	Node         string        `mapstructure:"node"`
	Web3RPC      []string      `mapstructure:"web3rpc"`
	Contract     string        `mapstructure:"contract"`
	PrivKey      string        `mapstructure:"privkey"`
	Address      string        `mapstructure:"address"`
	Candidate    uint32        `mapstructure:"candidate"`
	Scheme       string        `mapstructure:"scheme"`
	CensusID     string        `mapstructure:"censusId"`
	ProveTimeout time.Duration `mapstructure:"proveTimeout"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Commitment   bool          `mapstructure:"commitment"`
	Tally        bool          `mapstructure:"tally"`
}

func main() {
	flag.String("logLevel", "warn", "log level (debug, info, warn, error)")
	flag.String("node", config.DefaultNodeURL, "voting node API endpoint, also used as proving service")
	flag.StringSlice("web3rpc", []string{config.DefaultWeb3RPC}, "web3 rpc endpoints, used only with --contract")
	flag.String("contract", "", "address of the voting contract, if set the vote is cast on chain")
	flag.String("privkey", "", "hexadecimal private key of the account that sends the vote transaction")
	flag.String("address", "", "voter address, a random one is used if empty")
	flag.Uint32("candidate", 0, "candidate id to vote for")
	flag.String("scheme", config.DefaultCredentialScheme, "nullifier derivation scheme (poseidon, hexreversal)")
	flag.String("censusId", "", "census of the node used to build the membership witness, empty for an open election")
	flag.Duration("proveTimeout", config.DefaultProveTimeout, "proof generation timeout")
	flag.Duration("timeout", config.DefaultVoteTimeout, "timeout of the whole vote attempt")
	flag.Bool("commitment", false, "print the census commitment of the voter and exit")
	flag.Bool("tally", false, "print the tally of the node and exit")
	flag.CommandLine.SortFlags = false
	flag.Parse()

	pviper := viper.New()
	pviper.SetEnvPrefix("ZKVOTE")
	pviper.AutomaticEnv()
	pviper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := pviper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	conf := VoterConfig{}
	if err := pviper.Unmarshal(&conf); err != nil {
		panic(err)
	}
	log.Init(conf.LogLevel, "stderr", nil)

	ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
	defer cancel()
	if err := run(ctx, conf); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, conf VoterConfig) error {
	node, err := client.NewNode(conf.Node)
	if err != nil {
		return err
	}
	if conf.Tally {
		return printTally(ctx, node)
	}

	scheme, err := credential.ParseScheme(conf.Scheme)
	if err != nil {
		return err
	}
	election, err := node.Election(ctx)
	if err != nil {
		return fmt.Errorf("could not get the election: %w", err)
	}
	if conf.Address == "" {
		conf.Address = "0x" + util.RandomHex(common.AddressLength)
	}
	identity := &types.VoterIdentity{
		Address: conf.Address,
		Token:   credential.ElectionToken(election.ID),
	}
	deriver := credential.New(scheme)

	if conf.Commitment {
		cred, err := deriver.Derive(identity)
		if err != nil {
			return err
		}
		fmt.Println(types.HexBytes(census.Commitment(cred)).Hex())
		return nil
	}

	var l ledger.Ledger = node
	if conf.Contract != "" {
		if l, err = contracts(conf); err != nil {
			return err
		}
	}
	p, err := prover.NewClient(conf.Node, conf.ProveTimeout)
	if err != nil {
		return err
	}
	v := voter.New(deriver, ballot.NewBuilder(election.Candidates), p, submitter.New(l))
	if conf.CensusID != "" {
		censusID, err := uuid.Parse(conf.CensusID)
		if err != nil {
			return fmt.Errorf("invalid census id: %w", err)
		}
		v.SetCensus(voter.CensusFunc(func(ctx context.Context, cred *types.VoterCredential) (*types.MembershipWitness, error) {
			return node.Witness(ctx, censusID, cred)
		}))
	}

	candidate, _ := election.Candidates.Get(conf.Candidate)
	log.Infow("casting vote", "address", conf.Address, "candidate", candidate.Name, "election", election.ID.String())
	outcome, err := v.Vote(ctx, identity, conf.Candidate)
	if outcome != nil {
		fmt.Printf("status: %s\nnullifier: %s\n", outcome.Status, outcome.Nullifier.Hex())
		if len(outcome.TxHash) > 0 {
			fmt.Printf("tx: %s\n", outcome.TxHash.Hex())
		}
	}
	return err
}

func contracts(conf VoterConfig) (*web3.Contracts, error) {
	if !common.IsHexAddress(conf.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", conf.Contract)
	}
	if len(conf.Web3RPC) == 0 {
		return nil, fmt.Errorf("no web3 endpoint provided")
	}
	c, err := web3.NewContracts(common.HexToAddress(conf.Contract), conf.Web3RPC[0])
	if err != nil {
		return nil, err
	}
	for _, rpc := range conf.Web3RPC[1:] {
		if err := c.AddWeb3Endpoint(rpc); err != nil {
			log.Warnw("failed to add endpoint", "rpc", rpc, "error", err.Error())
		}
	}
	if err := c.SetAccountPrivateKey(util.TrimHex(conf.PrivKey)); err != nil {
		return nil, err
	}
	log.Infow("contracts initialized", "address", c.Address().Hex(), "account", c.AccountAddress().Hex())
	return c, nil
}

func printTally(ctx context.Context, node *client.Node) error {
	t, err := node.Tally(ctx)
	if err != nil {
		return err
	}
	for _, c := range t.Candidates {
		fmt.Printf("%d %-24s %8d %6.2f%%\n", c.ID, c.Name, c.Votes, c.Percentage)
	}
	fmt.Printf("total: %d (updated %s)\n", t.Total, t.UpdatedAt.Format(time.RFC3339))
	return nil
}
