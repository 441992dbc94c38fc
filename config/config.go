// Package config holds the default values shared by the node daemon and the
// voting client.
package config

import "time"

// DefaultCandidates are the candidates of the reference election, in the
// id:name:party form accepted by types.ParseCandidates.
var DefaultCandidates = []string{
	"1:Alice Johnson:Progressive",
	"2:Bob Smith:Conservative",
	"3:Carol Williams:Independent",
}

const (
	// DefaultElectionTitle is the title of the election registered by the node
	// when none is configured.
	DefaultElectionTitle = "Reference election"
	// DefaultCredentialScheme is the name of the credential derivation scheme.
	DefaultCredentialScheme = "poseidon"

	// DefaultAPIHost and DefaultAPIPort are the listen address of the node API.
	DefaultAPIHost = "0.0.0.0"
	DefaultAPIPort = 9090
	// DefaultNodeURL is the API endpoint used by the client.
	DefaultNodeURL = "http://localhost:9090"
	// DefaultWeb3RPC is the web3 endpoint used by the client when voting
	// directly against the voting contract.
	DefaultWeb3RPC = "http://localhost:8545"

	// DefaultDataDir is the directory, relative to the user home, where the
	// node keeps its database and configuration file.
	DefaultDataDir = ".zkanonvote"
	// DefaultLogLevel is the log level of both binaries.
	DefaultLogLevel = "info"

	// DefaultTallyInterval is the interval between tally snapshots.
	DefaultTallyInterval = 10 * time.Second
	// DefaultProveTimeout bounds the remote proof generation.
	DefaultProveTimeout = 2 * time.Minute
	// DefaultVoteTimeout bounds a whole vote attempt, from derivation to the
	// final submission outcome.
	DefaultVoteTimeout = 5 * time.Minute
)
