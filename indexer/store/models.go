// Package store implements the Event Store Adapter (spec §4.1): typed,
// history-aware reads over the versioned event tables keyed by
// (namespace, subject, key, blockHeight). Models follow the GORM style of
// services/otc-gateway/models/models.go; the adapter never interprets
// values, it hands back whatever bytes were stored.
package store

import (
	"time"

	"gorm.io/gorm"
)

// WasmStateEvent is a single write (or tombstone) of a contract's raw key
// space. Key is the length-prefixed composed byte key described in spec §3;
// the store treats it as an opaque byte string.
type WasmStateEvent struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	ContractAddress string `gorm:"size:64;uniqueIndex:idx_wasm_state_unique,priority:1;index:idx_wasm_state_lookup,priority:1"`
	Key             []byte `gorm:"uniqueIndex:idx_wasm_state_unique,priority:2;index:idx_wasm_state_lookup,priority:2"`
	BlockHeight     uint64 `gorm:"uniqueIndex:idx_wasm_state_unique,priority:3;index:idx_wasm_state_lookup,priority:3"`
	BlockTimeUnixMs uint64
	Value           []byte
	Delete          bool
}

// WasmStateEventTransformation is a derived view of wasm state produced by
// an external transformer (spec glossary: Transformation). Value is raw JSON
// or nil ("absent").
type WasmStateEventTransformation struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	ContractAddress string `gorm:"size:64;uniqueIndex:idx_wasm_xform_unique,priority:1;index:idx_wasm_xform_lookup,priority:1"`
	Name            string `gorm:"size:256;uniqueIndex:idx_wasm_xform_unique,priority:2;index:idx_wasm_xform_lookup,priority:2"`
	BlockHeight     uint64 `gorm:"uniqueIndex:idx_wasm_xform_unique,priority:3;index:idx_wasm_xform_lookup,priority:3"`
	BlockTimeUnixMs uint64
	Value           []byte
}

// WasmTxEvent is an event emitted by a contract execution, indexed by
// contract address and ascending block height.
type WasmTxEvent struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	ContractAddress string `gorm:"size:64;index"`
	BlockHeight     uint64 `gorm:"index"`
	BlockTimeUnixMs uint64
	TxHash          string `gorm:"size:128"`
	Key             string `gorm:"size:256"`
	Value           []byte
}

// BankStateEvent is a per-denomination balance write, consulted only as a
// history fallback for contracts opted into bank-history tracking (spec I3).
type BankStateEvent struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Address         string `gorm:"size:64;uniqueIndex:idx_bank_state_unique,priority:1;index:idx_bank_state_lookup,priority:1"`
	Denom           string `gorm:"size:64;uniqueIndex:idx_bank_state_unique,priority:2;index:idx_bank_state_lookup,priority:2"`
	BlockHeight     uint64 `gorm:"uniqueIndex:idx_bank_state_unique,priority:3;index:idx_bank_state_lookup,priority:3"`
	BlockTimeUnixMs uint64
	Balance         string `gorm:"size:128"`
}

// BankBalance is the latest-snapshot table: exactly one row per address,
// holding every denom's balance as a JSON object (spec I3).
type BankBalance struct {
	Address         string `gorm:"size:64;primaryKey"`
	Balances        []byte
	BlockHeight     uint64 `gorm:"index"`
	BlockTimeUnixMs uint64
}

// StakingSlashEvent records a validator slash, ordered descending by
// RegisteredBlockHeight when read (spec §4.3 getSlashEvents).
type StakingSlashEvent struct {
	ID                    uint64 `gorm:"primaryKey;autoIncrement"`
	ValidatorOperator     string `gorm:"size:64;index"`
	RegisteredBlockHeight uint64 `gorm:"index"`
	BlockTimeUnixMs       uint64
	InfractionBlockHeight uint64
	Slashed               string `gorm:"size:64"`
	Reason                string `gorm:"size:128"`
}

// GovProposal is a governance proposal snapshot at a given height; only the
// row with the greatest height per ProposalID is the effective one.
type GovProposal struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	ProposalID      uint64 `gorm:"index:idx_gov_proposal_lookup,priority:1"`
	BlockHeight     uint64 `gorm:"index:idx_gov_proposal_lookup,priority:2"`
	BlockTimeUnixMs uint64
	Status          string `gorm:"size:64"`
	Data            []byte
}

// GovProposalVote is a single voter's latest vote on a proposal, distinct on
// (Voter, ProposalID).
type GovProposalVote struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	ProposalID      uint64 `gorm:"index:idx_gov_vote_lookup,priority:1"`
	Voter           string `gorm:"size:64;index:idx_gov_vote_lookup,priority:2"`
	BlockHeight     uint64 `gorm:"index:idx_gov_vote_lookup,priority:3"`
	BlockTimeUnixMs uint64
	Option          string `gorm:"size:32"`
}

// DistributionCommunityPoolStateEvent is a single-row-per-height snapshot of
// the community pool's balances.
type DistributionCommunityPoolStateEvent struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	BlockHeight     uint64 `gorm:"uniqueIndex"`
	BlockTimeUnixMs uint64
	Balances        []byte
}

// Extraction is a named, address-scoped derived datum produced outside the
// wasm-transformation pipeline (e.g. an off-chain oracle attestation).
type Extraction struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Address         string `gorm:"size:64;uniqueIndex:idx_extraction_unique,priority:1;index:idx_extraction_lookup,priority:1"`
	Name            string `gorm:"size:128;uniqueIndex:idx_extraction_unique,priority:2;index:idx_extraction_lookup,priority:2"`
	BlockHeight     uint64 `gorm:"uniqueIndex:idx_extraction_unique,priority:3;index:idx_extraction_lookup,priority:3"`
	BlockTimeUnixMs uint64
	Value           []byte
}

// FeegrantAllowance records a fee-grant relationship between a granter and
// a grantee at a given height; Revoked acts as the tombstone.
type FeegrantAllowance struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Granter         string `gorm:"size:64;uniqueIndex:idx_feegrant_unique,priority:1;index:idx_feegrant_lookup,priority:1"`
	Grantee         string `gorm:"size:64;uniqueIndex:idx_feegrant_unique,priority:2;index:idx_feegrant_lookup,priority:2"`
	BlockHeight     uint64 `gorm:"uniqueIndex:idx_feegrant_unique,priority:3;index:idx_feegrant_lookup,priority:3"`
	BlockTimeUnixMs uint64
	Allowance       []byte
	Revoked         bool
}

// Contract maps a contract address to the code id it was instantiated from.
type Contract struct {
	Address string `gorm:"size:64;primaryKey"`
	CodeID  uint64 `gorm:"index"`
}

// Validator is a known validator's operator address.
type Validator struct {
	OperatorAddress string `gorm:"size:64;primaryKey"`
	ConsensusPubkey string `gorm:"size:128"`
}

// ChainState is the singleton holding chain identity and the indexer's
// visible head. Named ChainState (not State) to avoid colliding with
// indexer/chain.State, which is the in-memory read model derived from it.
type ChainState struct {
	ChainID               string `gorm:"primaryKey;size:64"`
	LatestBlockHeight     uint64
	LatestBlockTimeUnixMs uint64
}

// BlockRow maps a height to its timestamp, letting the adapter resolve
// "the block at or after a given time" for time-based range queries.
type BlockRow struct {
	Height     uint64 `gorm:"primaryKey"`
	TimeUnixMs uint64 `gorm:"index"`
}

// Computation is the persisted memo described in spec §4.7 / §3.
type Computation struct {
	ID                    string `gorm:"primaryKey;size:36"`
	TargetAddress         string `gorm:"size:64;uniqueIndex:idx_computation_lookup,priority:1"`
	FormulaType           string `gorm:"size:32;uniqueIndex:idx_computation_lookup,priority:2"`
	FormulaName           string `gorm:"size:128;uniqueIndex:idx_computation_lookup,priority:3"`
	Args                  string `gorm:"type:text;uniqueIndex:idx_computation_lookup,priority:4"`
	BlockHeight           uint64 `gorm:"uniqueIndex:idx_computation_lookup,priority:5"`
	BlockTimeUnixMs       uint64
	Output                []byte
	OutputIsNull          bool
	LatestBlockHeightValid uint64 `gorm:"index"`
	CreatedAt             time.Time
	UpdatedAt             time.Time

	Dependencies []ComputationDependency `gorm:"constraint:OnDelete:CASCADE"`
}

// ComputationDependency is one dependent key recorded against a Computation,
// exact or prefix (spec §3 "Dependent key").
type ComputationDependency struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	ComputationID  string `gorm:"size:36;index"`
	DependentKey   string `gorm:"size:256;index"`
	Prefix         bool
}

// AutoMigrate creates/updates every table the adapter and cache need.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&WasmStateEvent{},
		&WasmStateEventTransformation{},
		&WasmTxEvent{},
		&BankStateEvent{},
		&BankBalance{},
		&StakingSlashEvent{},
		&GovProposal{},
		&GovProposalVote{},
		&DistributionCommunityPoolStateEvent{},
		&Extraction{},
		&FeegrantAllowance{},
		&Contract{},
		&Validator{},
		&ChainState{},
		&BlockRow{},
		&Computation{},
		&ComputationDependency{},
	)
}
