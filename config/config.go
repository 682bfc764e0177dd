package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/tolelom/latticenode/core"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// FrontiersConfirmation controls the §4.7 frontier-confirmation loop.
type FrontiersConfirmation string

const (
	FrontiersConfirmationDisabled  FrontiersConfirmation = "disabled"
	FrontiersConfirmationAutomatic FrontiersConfirmation = "automatic"
	FrontiersConfirmationAlways    FrontiersConfirmation = "always"
)

// EpochEntry registers one protocol tier's signer key and link sentinel
// (spec §4.1).
type EpochEntry struct {
	Tier      core.Tier `json:"tier"`
	SignerPub string    `json:"signer_pub"` // hex ed25519 public key
	Sentinel  string    `json:"sentinel"`   // hex block hash used as the epoch link
}

// GenesisConfig describes the ledger's initial state: one open block for
// the genesis account, crediting it with the entire raw-unit supply
// (spec §4.4 genesis invariant).
type GenesisConfig struct {
	Account        string `json:"account"`         // hex ed25519 public key
	Representative string `json:"representative"`  // hex ed25519 public key, defaults to Account
	Balance        string `json:"balance"`         // decimal raw units
	Signature      string `json:"signature"`       // hex ed25519 signature over the open block
	Work           uint64 `json:"work"`
}

// Config holds all node configuration (spec §6.4).
type Config struct {
	NodeID     string `json:"node_id"`
	DataDir    string `json:"data_dir"`
	PeeringPort int   `json:"peering_port"`

	Genesis   GenesisConfig `json:"genesis"`
	Epochs    []EpochEntry  `json:"epochs,omitempty"`
	SeedPeers []SeedPeer    `json:"seed_peers,omitempty"`
	TLS       *TLSConfig    `json:"tls,omitempty"`

	// Voting / elections (spec §6.4).
	ActiveElectionsSize       int                   `json:"active_elections_size"`
	FrontiersConfirmation     FrontiersConfirmation `json:"frontiers_confirmation"`
	VoteMinimum               string                `json:"vote_minimum"`
	ReceiveMinimum            string                `json:"receive_minimum"`
	EnableVoting              bool                  `json:"enable_voting"`
	ConfirmationHistorySize   int                   `json:"confirmation_history_size"`
	ElectionHintWeightPercent int                   `json:"election_hint_weight_percent"`
	OnlineWeightMinimum       string                `json:"online_weight_minimum"`
	PasswordFanout            int                   `json:"password_fanout"`
	MinVoterCount             int                   `json:"min_voter_count"`
	QuorumPercent             int                   `json:"quorum_percent"`

	BootstrapMaxBlocks uint64 `json:"bootstrap_max_blocks"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:                    "node0",
		DataDir:                   "./data",
		PeeringPort:               7075,
		ActiveElectionsSize:       5000,
		FrontiersConfirmation:     FrontiersConfirmationAutomatic,
		VoteMinimum:               "1000000000000000000000000", // 1 Mxrb-equivalent raw unit
		ReceiveMinimum:            "1000000000000000000000000",
		ConfirmationHistorySize:   2048,
		ElectionHintWeightPercent: 10,
		OnlineWeightMinimum:       "60000000000000000000000000000000",
		PasswordFanout:            1024,
		MinVoterCount:             15, // live network class (spec §9: dev=2, beta=5, live=15)
		QuorumPercent:             50,
		BootstrapMaxBlocks:        20_000_000,
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.PeeringPort <= 0 || c.PeeringPort > 65535 {
		return fmt.Errorf("peering_port must be 1-65535, got %d", c.PeeringPort)
	}
	if c.Genesis.Account == "" {
		return fmt.Errorf("genesis.account must not be empty")
	}
	if _, err := hex.DecodeString(c.Genesis.Account); err != nil {
		return fmt.Errorf("genesis.account: %w", err)
	}
	if c.ActiveElectionsSize <= 0 {
		return fmt.Errorf("active_elections_size must be positive")
	}
	switch c.FrontiersConfirmation {
	case FrontiersConfirmationDisabled, FrontiersConfirmationAutomatic, FrontiersConfirmationAlways:
	default:
		return fmt.Errorf("frontiers_confirmation: unrecognized value %q", c.FrontiersConfirmation)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ParseAmount parses a decimal raw-unit string into a core.Amount,
// defaulting to zero for an empty string.
func ParseAmount(s string) (core.Amount, error) {
	if s == "" {
		return core.ZeroAmount(), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return core.Amount{}, fmt.Errorf("invalid decimal amount %q", s)
	}
	return core.AmountFromBig(n), nil
}
