package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Adapter is the typed, history-aware read surface described in spec §4.1.
// Event reads apply blockHeight <= targetHeight; point and map reads return
// the row (or rows) with the greatest blockHeight per key, while the
// first-set/first-transformed reads scan ascending. Contract, Query,
// ChainState and the Block lookups take no target height. It never
// interprets values; callers (indexer/formula.Env) own JSON decoding.
type Adapter interface {
	WasmStatePoint(ctx context.Context, contractAddress string, key []byte, targetHeight uint64) (value []byte, deleted bool, found bool, err error)
	WasmStateMap(ctx context.Context, contractAddress string, keyPrefix []byte, targetHeight uint64) (map[string][]byte, error)
	WasmStateDateModified(ctx context.Context, contractAddress string, key []byte, targetHeight uint64) (*time.Time, error)
	WasmStateDateFirstSet(ctx context.Context, contractAddress string, key []byte, targetHeight uint64, valueMatch func([]byte) bool) (*time.Time, error)

	TransformationMatches(ctx context.Context, contractAddress *string, namePattern string, targetHeight uint64, limit int) ([]WasmStateEventTransformation, error)
	TransformationMap(ctx context.Context, contractAddress string, namePrefix string, targetHeight uint64) (map[string][]byte, error)
	TransformationDateFirst(ctx context.Context, contractAddress string, name string, targetHeight uint64) (*time.Time, error)

	Contract(ctx context.Context, address string) (*Contract, error)

	BankBalanceSnapshot(ctx context.Context, address string, targetHeight uint64) (*BankBalance, error)
	BankStateHistory(ctx context.Context, address string, denom string, targetHeight uint64) (*BankStateEvent, error)
	BankStateHistoryAll(ctx context.Context, address string, targetHeight uint64) ([]BankStateEvent, error)

	SlashEvents(ctx context.Context, validator string, targetHeight uint64) ([]StakingSlashEvent, error)
	TxEvents(ctx context.Context, contractAddress string, targetHeight uint64, whereKey string) ([]WasmTxEvent, error)

	Proposals(ctx context.Context, targetHeight uint64, ascending bool, limit, offset int) ([]GovProposal, error)
	Proposal(ctx context.Context, proposalID uint64, targetHeight uint64) (*GovProposal, error)
	ProposalCount(ctx context.Context, targetHeight uint64) (int64, error)

	ProposalVotes(ctx context.Context, proposalID uint64, targetHeight uint64, ascending bool, limit, offset int) ([]GovProposalVote, error)
	ProposalVote(ctx context.Context, proposalID uint64, voter string, targetHeight uint64) (*GovProposalVote, error)
	ProposalVoteCount(ctx context.Context, proposalID uint64, targetHeight uint64) (int64, error)

	CommunityPoolBalances(ctx context.Context, targetHeight uint64) (*DistributionCommunityPoolStateEvent, error)

	Extraction(ctx context.Context, address, name string, targetHeight uint64) (*Extraction, error)

	FeegrantAllowance(ctx context.Context, granter, grantee string, targetHeight uint64) (*FeegrantAllowance, error)
	FeegrantAllowances(ctx context.Context, address string, byGranter bool, targetHeight uint64) ([]FeegrantAllowance, error)

	Query(ctx context.Context, sql string, binds []any) ([]map[string]any, error)

	ChainState(ctx context.Context, chainID string) (*ChainState, error)
	BlockAtOrAfterTime(ctx context.Context, timeUnixMs uint64) (*BlockRow, error)
	BlockByHeight(ctx context.Context, height uint64) (*BlockRow, error)

	// ChangedEventHeights returns every distinct
	// block height strictly greater than afterHeight (and <= capHeight) at
	// which the given key(s) changed, used by the range evaluator (C6) to
	// compute nextChangeHeight. namespace-specific because each event
	// family lives in its own table.
	ChangedEventHeights(ctx context.Context, namespace, subject, suffix string, prefix bool, afterHeight, capHeight uint64) ([]uint64, error)
}

type gormAdapter struct {
	db *gorm.DB
}

// New constructs the default GORM-backed Adapter.
func New(db *gorm.DB) Adapter {
	return &gormAdapter{db: db}
}

func (a *gormAdapter) WasmStatePoint(ctx context.Context, contractAddress string, key []byte, targetHeight uint64) ([]byte, bool, bool, error) {
	var row WasmStateEvent
	err := a.db.WithContext(ctx).
		Where("contract_address = ? AND key = ? AND block_height <= ?", contractAddress, key, targetHeight).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, err
	}
	return row.Value, row.Delete, true, nil
}

// WasmStateMap returns the latest non-deleted value for every key sharing
// keyPrefix, keyed by the trailing bytes after the prefix (spec §4.1 "map
// read"). It loads every row of the contract at or below targetHeight and
// keeps the greatest-height row per key in Go, so the same query runs on
// Postgres and the SQLite test backend.
func (a *gormAdapter) WasmStateMap(ctx context.Context, contractAddress string, keyPrefix []byte, targetHeight uint64) (map[string][]byte, error) {
	var candidates []WasmStateEvent
	err := a.db.WithContext(ctx).
		Where("contract_address = ? AND block_height <= ?", contractAddress, targetHeight).
		Order("key ASC, block_height DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	latest := map[string]WasmStateEvent{}
	for _, row := range candidates {
		if !bytes.HasPrefix(row.Key, keyPrefix) {
			continue
		}
		k := string(row.Key)
		if existing, ok := latest[k]; !ok || row.BlockHeight > existing.BlockHeight {
			latest[k] = row
		}
	}
	out := map[string][]byte{}
	for k, row := range latest {
		if row.Delete {
			continue
		}
		suffix := k[len(keyPrefix):]
		out[suffix] = row.Value
	}
	return out, nil
}

func (a *gormAdapter) WasmStateDateModified(ctx context.Context, contractAddress string, key []byte, targetHeight uint64) (*time.Time, error) {
	var row WasmStateEvent
	err := a.db.WithContext(ctx).
		Where("contract_address = ? AND key = ? AND block_height <= ?", contractAddress, key, targetHeight).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(int64(row.BlockTimeUnixMs)).UTC()
	return &t, nil
}

// WasmStateDateFirstSet reads ascending and bypasses the memo (spec I4):
// callers invoke this directly, it is never routed through Environment's
// positive-hit memo.
func (a *gormAdapter) WasmStateDateFirstSet(ctx context.Context, contractAddress string, key []byte, targetHeight uint64, valueMatch func([]byte) bool) (*time.Time, error) {
	var rows []WasmStateEvent
	err := a.db.WithContext(ctx).
		Where("contract_address = ? AND key = ? AND block_height <= ? AND \"delete\" = ?", contractAddress, key, targetHeight, false).
		Order("block_height ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if valueMatch != nil && !valueMatch(row.Value) {
			continue
		}
		t := time.UnixMilli(int64(row.BlockTimeUnixMs)).UTC()
		return &t, nil
	}
	return nil, nil
}

// TransformationMatches returns, for every distinct (name, contractAddress)
// whose name matches namePattern (SQL LIKE form, '*' already translated to
// '%' by the caller), the row with the greatest blockHeight <= targetHeight.
// Code-id filtering is applied by the caller, post-query, per spec §4.3.
func (a *gormAdapter) TransformationMatches(ctx context.Context, contractAddress *string, namePattern string, targetHeight uint64, limit int) ([]WasmStateEventTransformation, error) {
	q := a.db.WithContext(ctx).Where("block_height <= ?", targetHeight).Where("name LIKE ?", namePattern)
	if contractAddress != nil {
		q = q.Where("contract_address = ?", *contractAddress)
	}
	var candidates []WasmStateEventTransformation
	if err := q.Order("contract_address ASC, name ASC, block_height DESC").Find(&candidates).Error; err != nil {
		return nil, err
	}
	type pairKey struct{ addr, name string }
	latest := map[pairKey]WasmStateEventTransformation{}
	order := []pairKey{}
	for _, row := range candidates {
		k := pairKey{row.ContractAddress, row.Name}
		if existing, ok := latest[k]; !ok {
			latest[k] = row
			order = append(order, k)
		} else if row.BlockHeight > existing.BlockHeight {
			latest[k] = row
		}
	}
	out := make([]WasmStateEventTransformation, 0, len(order))
	for _, k := range order {
		out = append(out, latest[k])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockHeight != out[j].BlockHeight {
			return out[i].BlockHeight > out[j].BlockHeight
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *gormAdapter) TransformationMap(ctx context.Context, contractAddress string, namePrefix string, targetHeight uint64) (map[string][]byte, error) {
	pattern := namePrefix + ":%"
	rows, err := a.TransformationMatches(ctx, &contractAddress, pattern, targetHeight, 0)
	if err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	for _, row := range rows {
		if row.Value == nil {
			continue
		}
		suffix := row.Name[len(namePrefix)+1:]
		out[suffix] = row.Value
	}
	return out, nil
}

func (a *gormAdapter) TransformationDateFirst(ctx context.Context, contractAddress string, name string, targetHeight uint64) (*time.Time, error) {
	var row WasmStateEventTransformation
	err := a.db.WithContext(ctx).
		Where("contract_address = ? AND name = ? AND block_height <= ? AND value IS NOT NULL", contractAddress, name, targetHeight).
		Order("block_height ASC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(int64(row.BlockTimeUnixMs)).UTC()
	return &t, nil
}

func (a *gormAdapter) Contract(ctx context.Context, address string) (*Contract, error) {
	var row Contract
	err := a.db.WithContext(ctx).Where("address = ?", address).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) BankBalanceSnapshot(ctx context.Context, address string, targetHeight uint64) (*BankBalance, error) {
	var row BankBalance
	err := a.db.WithContext(ctx).
		Where("address = ? AND block_height <= ?", address, targetHeight).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) BankStateHistory(ctx context.Context, address string, denom string, targetHeight uint64) (*BankStateEvent, error) {
	var row BankStateEvent
	err := a.db.WithContext(ctx).
		Where("address = ? AND denom = ? AND block_height <= ?", address, denom, targetHeight).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) BankStateHistoryAll(ctx context.Context, address string, targetHeight uint64) ([]BankStateEvent, error) {
	var rows []BankStateEvent
	err := a.db.WithContext(ctx).
		Where("address = ? AND block_height <= ?", address, targetHeight).
		Order("denom ASC, block_height DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := map[string]BankStateEvent{}
	for _, row := range rows {
		if existing, ok := latest[row.Denom]; !ok || row.BlockHeight > existing.BlockHeight {
			latest[row.Denom] = row
		}
	}
	out := make([]BankStateEvent, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out, nil
}

func (a *gormAdapter) SlashEvents(ctx context.Context, validator string, targetHeight uint64) ([]StakingSlashEvent, error) {
	var rows []StakingSlashEvent
	err := a.db.WithContext(ctx).
		Where("validator_operator = ? AND registered_block_height <= ?", validator, targetHeight).
		Order("registered_block_height DESC").
		Find(&rows).Error
	return rows, err
}

func (a *gormAdapter) TxEvents(ctx context.Context, contractAddress string, targetHeight uint64, whereKey string) ([]WasmTxEvent, error) {
	q := a.db.WithContext(ctx).Where("contract_address = ? AND block_height <= ?", contractAddress, targetHeight)
	if whereKey != "" {
		q = q.Where("key = ?", whereKey)
	}
	var rows []WasmTxEvent
	err := q.Order("block_height DESC").Find(&rows).Error
	return rows, err
}

// Proposals returns the effective (max-height-per-proposal) snapshot of
// every proposal, paginated. The list form is expected to be used by
// callers as "project id+height first, re-fetch the page" (spec §4.3); here
// we do it in one pass since the table sizes in play are indexer-scale, not
// unbounded.
func (a *gormAdapter) Proposals(ctx context.Context, targetHeight uint64, ascending bool, limit, offset int) ([]GovProposal, error) {
	var candidates []GovProposal
	err := a.db.WithContext(ctx).
		Where("block_height <= ?", targetHeight).
		Order("proposal_id ASC, block_height DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	latest := map[uint64]GovProposal{}
	for _, row := range candidates {
		if existing, ok := latest[row.ProposalID]; !ok || row.BlockHeight > existing.BlockHeight {
			latest[row.ProposalID] = row
		}
	}
	out := make([]GovProposal, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].ProposalID < out[j].ProposalID
		}
		return out[i].ProposalID > out[j].ProposalID
	})
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *gormAdapter) Proposal(ctx context.Context, proposalID uint64, targetHeight uint64) (*GovProposal, error) {
	var row GovProposal
	err := a.db.WithContext(ctx).
		Where("proposal_id = ? AND block_height <= ?", proposalID, targetHeight).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) ProposalCount(ctx context.Context, targetHeight uint64) (int64, error) {
	all, err := a.Proposals(ctx, targetHeight, true, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// ProposalVotes applies the tie-break decided in DESIGN.md for the §9 open
// question: primary order by blockHeight (per ascending), secondary by
// (voter asc, proposal asc).
func (a *gormAdapter) ProposalVotes(ctx context.Context, proposalID uint64, targetHeight uint64, ascending bool, limit, offset int) ([]GovProposalVote, error) {
	var candidates []GovProposalVote
	err := a.db.WithContext(ctx).
		Where("proposal_id = ? AND block_height <= ?", proposalID, targetHeight).
		Order("voter ASC, block_height DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	latest := map[string]GovProposalVote{}
	for _, row := range candidates {
		if existing, ok := latest[row.Voter]; !ok || row.BlockHeight > existing.BlockHeight {
			latest[row.Voter] = row
		}
	}
	out := make([]GovProposalVote, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockHeight != out[j].BlockHeight {
			if ascending {
				return out[i].BlockHeight < out[j].BlockHeight
			}
			return out[i].BlockHeight > out[j].BlockHeight
		}
		if out[i].Voter != out[j].Voter {
			return out[i].Voter < out[j].Voter
		}
		return out[i].ProposalID < out[j].ProposalID
	})
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *gormAdapter) ProposalVote(ctx context.Context, proposalID uint64, voter string, targetHeight uint64) (*GovProposalVote, error) {
	var row GovProposalVote
	err := a.db.WithContext(ctx).
		Where("proposal_id = ? AND voter = ? AND block_height <= ?", proposalID, voter, targetHeight).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) ProposalVoteCount(ctx context.Context, proposalID uint64, targetHeight uint64) (int64, error) {
	all, err := a.ProposalVotes(ctx, proposalID, targetHeight, true, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (a *gormAdapter) CommunityPoolBalances(ctx context.Context, targetHeight uint64) (*DistributionCommunityPoolStateEvent, error) {
	var row DistributionCommunityPoolStateEvent
	err := a.db.WithContext(ctx).
		Where("block_height <= ?", targetHeight).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) Extraction(ctx context.Context, address, name string, targetHeight uint64) (*Extraction, error) {
	var row Extraction
	err := a.db.WithContext(ctx).
		Where("address = ? AND name = ? AND block_height <= ?", address, name, targetHeight).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) FeegrantAllowance(ctx context.Context, granter, grantee string, targetHeight uint64) (*FeegrantAllowance, error) {
	var row FeegrantAllowance
	err := a.db.WithContext(ctx).
		Where("granter = ? AND grantee = ? AND block_height <= ?", granter, grantee, targetHeight).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) FeegrantAllowances(ctx context.Context, address string, byGranter bool, targetHeight uint64) ([]FeegrantAllowance, error) {
	col := "grantee"
	if byGranter {
		col = "granter"
	}
	var candidates []FeegrantAllowance
	err := a.db.WithContext(ctx).
		Where(fmt.Sprintf("%s = ? AND block_height <= ?", col), address, targetHeight).
		Order("granter ASC, grantee ASC, block_height DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	type pairKey struct{ granter, grantee string }
	latest := map[pairKey]FeegrantAllowance{}
	for _, row := range candidates {
		k := pairKey{row.Granter, row.Grantee}
		if existing, ok := latest[k]; !ok || row.BlockHeight > existing.BlockHeight {
			latest[k] = row
		}
	}
	out := make([]FeegrantAllowance, 0, len(latest))
	for _, row := range latest {
		if row.Revoked {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Granter != out[j].Granter {
			return out[i].Granter < out[j].Granter
		}
		return out[i].Grantee < out[j].Grantee
	})
	return out, nil
}

func (a *gormAdapter) Query(ctx context.Context, sql string, binds []any) ([]map[string]any, error) {
	rows, err := a.db.WithContext(ctx).Raw(sql, binds...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *gormAdapter) ChainState(ctx context.Context, chainID string) (*ChainState, error) {
	var row ChainState
	err := a.db.WithContext(ctx).Where("chain_id = ?", chainID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) BlockAtOrAfterTime(ctx context.Context, timeUnixMs uint64) (*BlockRow, error) {
	var row BlockRow
	err := a.db.WithContext(ctx).
		Where("time_unix_ms >= ?", timeUnixMs).
		Order("time_unix_ms ASC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (a *gormAdapter) BlockByHeight(ctx context.Context, height uint64) (*BlockRow, error) {
	var row BlockRow
	err := a.db.WithContext(ctx).Where("height = ?", height).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ChangedEventHeights dispatches to the table backing namespace and returns
// every distinct height in (afterHeight, capHeight] at which subject/suffix
// (or, for prefix dependencies, any key beginning with suffix) changed. This
// powers the range evaluator's nextChangeHeight computation (spec §4.6).
func (a *gormAdapter) ChangedEventHeights(ctx context.Context, namespace, subject, suffix string, prefix bool, afterHeight, capHeight uint64) ([]uint64, error) {
	table, subjectCol, keyCol, err := namespaceTable(namespace)
	if err != nil {
		return nil, err
	}
	q := a.db.WithContext(ctx).Table(table).
		Where("block_height > ? AND block_height <= ?", afterHeight, capHeight)

	switch {
	case namespace == "feegrant":
		// feegrant subjects are compound granter|grantee keys (keys.go's
		// feegrantKey) where either half may be the "*" sentinel meaning
		// "match any value on this side" - decompose rather than compare
		// the whole compound string against a single column.
		granter, grantee := splitFeegrantSubject(subject)
		if granter != "" && granter != feegrantWildcard {
			q = q.Where("granter = ?", granter)
		}
		if grantee != "" && grantee != feegrantWildcard {
			q = q.Where("grantee = ?", grantee)
		}
	case subject != "":
		q = q.Where(subjectCol+" = ?", subject)
	}
	// An empty subject (outside the feegrant case) means "any row in this
	// namespace" - e.g. GetProposals/GetProposalCount and
	// GetCommunityPoolBalances record dependencies with no per-row
	// subject, so the subject filter is dropped entirely.

	if keyCol == "" || suffix == "" {
		var heights []uint64
		if err := q.Distinct().Pluck("block_height", &heights).Error; err != nil {
			return nil, err
		}
		sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
		return heights, nil
	}

	// Binary key prefixes are filtered in Go rather than via SQL LIKE:
	// wasm keys are raw length-prefixed byte strings, not text, so a
	// database-side pattern match would need per-backend escaping.
	type row struct {
		BlockHeight uint64
		Key         []byte
	}
	var rows []row
	if err := q.Select("block_height, " + keyCol + " as key").Find(&rows).Error; err != nil {
		return nil, err
	}
	suffixBytes := []byte(suffix)
	seen := map[uint64]bool{}
	var heights []uint64
	for _, r := range rows {
		matches := false
		if prefix {
			matches = bytes.HasPrefix(r.Key, suffixBytes)
		} else {
			matches = bytes.Equal(r.Key, suffixBytes)
		}
		if matches && !seen[r.BlockHeight] {
			seen[r.BlockHeight] = true
			heights = append(heights, r.BlockHeight)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights, nil
}

func namespaceTable(namespace string) (table, subjectCol, keyCol string, err error) {
	switch namespace {
	case "wasmState":
		return "wasm_state_events", "contract_address", "key", nil
	case "wasmStateTransformation":
		return "wasm_state_event_transformations", "contract_address", "", nil
	case "wasmTx":
		return "wasm_tx_events", "contract_address", "", nil
	case "bankState":
		return "bank_state_events", "address", "", nil
	case "bankBalance":
		return "bank_balances", "address", "", nil
	case "stakingSlash":
		return "staking_slash_events", "validator_operator", "", nil
	case "govProposal":
		return "gov_proposals", "proposal_id", "", nil
	case "govProposalVote":
		return "gov_proposal_votes", "proposal_id", "", nil
	case "communityPool":
		// Singleton-per-height snapshot table: no real per-row subject,
		// so dependencies are always recorded with an empty subject.
		return "distribution_community_pool_state_events", "", "", nil
	case "extraction":
		return "extractions", "address", "name", nil
	case "feegrant":
		return "feegrant_allowances", "granter", "", nil
	default:
		return "", "", "", fmt.Errorf("store: unknown dependent-key namespace %q", namespace)
	}
}

// feegrantWildcard mirrors keys.go's feegrantEitherSentinel. indexer/store
// cannot import indexer/formula (the dependency runs the other way), so the
// "|" separator and "*" sentinel are hardcoded here the same way
// namespaceTable already hardcodes raw namespace-name literals.
const feegrantWildcard = "*"

func splitFeegrantSubject(subject string) (granter, grantee string) {
	parts := strings.SplitN(subject, "|", 2)
	granter = parts[0]
	if len(parts) > 1 {
		grantee = parts[1]
	}
	return granter, grantee
}
