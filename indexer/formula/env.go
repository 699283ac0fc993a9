package formula

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/store"
)

// KeyType selects how GetMap decodes the trailing segment of a composed map
// key back into a Go map key (spec §4.3 getMap keyType: string|number|raw).
type KeyType int

const (
	KeyTypeString KeyType = iota
	KeyTypeNumber
	KeyTypeRaw
)

// GetMapOptions configures GetMap.
type GetMapOptions struct {
	KeyType KeyType
}

// ValueMatch predicates a decoded JSON value for DateKeyFirstSetWithValueMatch
// and transformation "where" filters.
type ValueMatch func(value any) bool

// TransformationResult pairs a transformation's decoded value with the
// contract address and name it was read from, since GetTransformationMatches
// fans out across contracts.
type TransformationResult struct {
	ContractAddress string
	Name            string
	Value           any
	BlockHeight     uint64
	BlockTimeUnixMs uint64
}

// Env is the capability object passed to every registered formula (C3, spec
// §4.3). One is constructed per evaluation and is never reused or shared
// across evaluations; durable reuse is the Computation Cache's job (C7).
type Env struct {
	ChainID       string
	Block         chain.Block
	UseBlockDate  bool
	Args          map[string]string
	TargetAddress string

	store    store.Adapter
	recorder *Recorder
	onFetch  func(rowCount int)
	wallNow  time.Time
	ctx      context.Context

	codeIDCatalogue   map[string][]uint64 // name -> set of code ids
	bankHistoryCodeIDs map[uint64]bool

	pointMemo  map[string]*pointMemoEntry
	prefixMemo map[string]*prefixMemoEntry
	contractMemo map[string]*contractMemoEntry
}

type pointMemoEntry struct {
	tried   bool
	found   bool
	deleted bool
	value   []byte
}

type prefixMemoEntry struct {
	fetched bool
	values  map[string][]byte // trailing-key -> value
}

type contractMemoEntry struct {
	tried    bool
	contract *store.Contract
}

// NewConfig carries the construction-time dependencies for an Env.
type NewConfig struct {
	ChainID            string
	Block              chain.Block
	UseBlockDate       bool
	Args               map[string]string
	TargetAddress      string
	Store              store.Adapter
	OnFetch            func(rowCount int)
	Now                time.Time
	CodeIDCatalogue    map[string][]uint64
	BankHistoryCodeIDs map[uint64]bool
}

// New constructs an Env bound to a single evaluation.
func New(ctx context.Context, cfg NewConfig) *Env {
	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &Env{
		ChainID:            cfg.ChainID,
		Block:              cfg.Block,
		UseBlockDate:       cfg.UseBlockDate,
		Args:               cfg.Args,
		TargetAddress:      cfg.TargetAddress,
		store:              cfg.Store,
		recorder:           NewRecorder(),
		onFetch:            cfg.OnFetch,
		wallNow:            now,
		ctx:                ctx,
		codeIDCatalogue:    cfg.CodeIDCatalogue,
		bankHistoryCodeIDs: cfg.BankHistoryCodeIDs,
		pointMemo:          map[string]*pointMemoEntry{},
		prefixMemo:         map[string]*prefixMemoEntry{},
		contractMemo:       map[string]*contractMemoEntry{},
	}
}

// Dependencies returns everything this evaluation has recorded so far.
func (e *Env) Dependencies() []Dependency {
	return e.recorder.Dependencies()
}

// Date returns the target block's time if UseBlockDate, else the wall-clock
// time captured at Env construction (spec §4.3 "date").
func (e *Env) Date() time.Time {
	if e.UseBlockDate {
		return e.Block.Time()
	}
	return e.wallNow
}

func decodeJSON(raw []byte) (any, error) {
	if raw == nil {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func mapKeyPrefix(name string) []byte {
	b := []byte(name)
	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(b)))
	return append(lenPrefix[:], b...)
}

func (e *Env) fetchNotify(n int) {
	if e.onFetch != nil && n > 0 {
		e.onFetch(n)
	}
}

// Get performs a point read on a contract's wasm state at a composed key
// (spec §4.3 "get"). Records an exact dependency before fetching, so a miss
// still invalidates the memo once the key appears.
func (e *Env) Get(address string, keys ...any) (any, error) {
	key, err := ComposeKey(keys...)
	if err != nil {
		return nil, errFormulaFailure(err, "compose key for Get(%s)", address)
	}
	dependentKey := DependentKey(NamespaceWasmState, address, string(key))
	e.recorder.RecordKey(dependentKey, false)

	if entry, ok := e.pointMemo[dependentKey]; ok {
		if !entry.found || entry.deleted {
			return nil, nil
		}
		return decodeJSON(entry.value)
	}

	value, deleted, found, err := e.store.WasmStatePoint(e.ctx, address, key, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "WasmStatePoint(%s)", address)
	}
	e.pointMemo[dependentKey] = &pointMemoEntry{tried: true, found: found, deleted: deleted, value: value}
	if found {
		e.fetchNotify(1)
	}
	if !found || deleted {
		return nil, nil
	}
	return decodeJSON(value)
}

// GetMap reads every key under a map name prefix (spec §4.3 "getMap"),
// recording a prefix dependency.
func (e *Env) GetMap(address, name string, opts GetMapOptions) (map[string]any, error) {
	prefix := mapKeyPrefix(name)
	dependentKey := DependentKey(NamespaceWasmState, address, string(prefix))
	e.recorder.RecordKey(dependentKey, true)

	var raw map[string][]byte
	if entry, ok := e.prefixMemo[dependentKey]; ok && entry.fetched {
		raw = entry.values
	} else {
		values, err := e.store.WasmStateMap(e.ctx, address, prefix, e.Block.Height)
		if err != nil {
			return nil, errTransport(err, "WasmStateMap(%s,%s)", address, name)
		}
		e.prefixMemo[dependentKey] = &prefixMemoEntry{fetched: true, values: values}
		e.fetchNotify(len(values))
		raw = values
	}

	out := make(map[string]any, len(raw))
	for suffix, value := range raw {
		decodedKey, err := decodeMapKey([]byte(suffix), opts.KeyType)
		if err != nil {
			return nil, errFormulaFailure(err, "decode map key for GetMap(%s,%s)", address, name)
		}
		v, err := decodeJSON(value)
		if err != nil {
			return nil, errFormulaFailure(err, "decode value for GetMap(%s,%s)", address, name)
		}
		out[decodedKey] = v
	}
	return out, nil
}

func decodeMapKey(suffix []byte, kt KeyType) (string, error) {
	switch kt {
	case KeyTypeNumber:
		if len(suffix) == 8 {
			return strconv.FormatUint(binary.BigEndian.Uint64(suffix), 10), nil
		}
		return string(suffix), nil
	case KeyTypeRaw:
		return fmt.Sprintf("%x", suffix), nil
	default:
		return string(suffix), nil
	}
}

// GetDateKeyModified returns the time of the most recent write to a key.
func (e *Env) GetDateKeyModified(address string, keys ...any) (*time.Time, error) {
	key, err := ComposeKey(keys...)
	if err != nil {
		return nil, errFormulaFailure(err, "compose key for GetDateKeyModified(%s)", address)
	}
	e.recorder.RecordKey(DependentKey(NamespaceWasmState, address, string(key)), false)
	t, err := e.store.WasmStateDateModified(e.ctx, address, key, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "WasmStateDateModified(%s)", address)
	}
	if t != nil {
		e.fetchNotify(1)
	}
	return t, nil
}

// GetDateKeyFirstSet returns the time of the first non-deleted write.
// Bypasses the memo entirely, per spec I4.
func (e *Env) GetDateKeyFirstSet(address string, keys ...any) (*time.Time, error) {
	return e.GetDateKeyFirstSetWithValueMatch(address, nil, keys...)
}

// GetDateKeyFirstSetWithValueMatch is GetDateKeyFirstSet filtered by a JSON
// value predicate.
func (e *Env) GetDateKeyFirstSetWithValueMatch(address string, match ValueMatch, keys ...any) (*time.Time, error) {
	key, err := ComposeKey(keys...)
	if err != nil {
		return nil, errFormulaFailure(err, "compose key for GetDateKeyFirstSetWithValueMatch(%s)", address)
	}
	e.recorder.RecordKey(DependentKey(NamespaceWasmState, address, string(key)), false)
	var valueMatch func([]byte) bool
	if match != nil {
		valueMatch = func(raw []byte) bool {
			v, err := decodeJSON(raw)
			if err != nil {
				return false
			}
			return match(v)
		}
	}
	t, err := e.store.WasmStateDateFirstSet(e.ctx, address, key, e.Block.Height, valueMatch)
	if err != nil {
		return nil, errTransport(err, "WasmStateDateFirstSet(%s)", address)
	}
	if t != nil {
		e.fetchNotify(1)
	}
	return t, nil
}

// GetTransformationMatches returns the most recent transformation per
// (name, contractAddress) whose name matches a glob ('*' -> SQL '%'), with
// code-id filtering applied post-query against the joined Contract (spec
// §4.3: the memo is keyed only on name, so code-id filtering cannot happen
// inside the store query).
func (e *Env) GetTransformationMatches(address *string, nameLike string, where ValueMatch, codeIdsKeys []string, limit int) ([]TransformationResult, error) {
	pattern := globToLike(nameLike)
	subject := ""
	if address != nil {
		subject = *address
	}
	e.recorder.Record(NamespaceTransformation, subject, pattern, true)

	rows, err := e.store.TransformationMatches(e.ctx, address, pattern, e.Block.Height, 0)
	if err != nil {
		return nil, errTransport(err, "TransformationMatches(%s)", nameLike)
	}
	e.fetchNotify(len(rows))

	var codeIDs map[uint64]bool
	if len(codeIdsKeys) > 0 {
		codeIDs, err = e.resolveCodeIDs(codeIdsKeys)
		if err != nil {
			return nil, err
		}
	}

	out := make([]TransformationResult, 0, len(rows))
	for _, row := range rows {
		if codeIDs != nil {
			contract, err := e.getContractMemoized(row.ContractAddress)
			if err != nil {
				return nil, err
			}
			if contract == nil || !codeIDs[contract.CodeID] {
				continue
			}
		}
		v, err := decodeJSON(row.Value)
		if err != nil {
			return nil, errFormulaFailure(err, "decode transformation %s/%s", row.ContractAddress, row.Name)
		}
		if where != nil && !where(v) {
			continue
		}
		out = append(out, TransformationResult{
			ContractAddress: row.ContractAddress,
			Name:            row.Name,
			Value:           v,
			BlockHeight:     row.BlockHeight,
			BlockTimeUnixMs: row.BlockTimeUnixMs,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetTransformationMatch returns the first result of GetTransformationMatches.
func (e *Env) GetTransformationMatch(address *string, nameLike string, where ValueMatch, codeIdsKeys []string) (*TransformationResult, error) {
	results, err := e.GetTransformationMatches(address, nameLike, where, codeIdsKeys, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func globToLike(pattern string) string {
	out := make([]byte, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			out = append(out, '%')
		} else {
			out = append(out, pattern[i])
		}
	}
	return string(out)
}

// GetTransformationMap returns every transformation whose name starts with
// namePrefix+":" as a mapping from the suffix to its decoded value,
// omitting null-valued rows.
func (e *Env) GetTransformationMap(address, namePrefix string) (map[string]any, error) {
	e.recorder.Record(NamespaceTransformation, address, namePrefix+":", true)
	raw, err := e.store.TransformationMap(e.ctx, address, namePrefix, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "TransformationMap(%s,%s)", address, namePrefix)
	}
	e.fetchNotify(len(raw))
	out := make(map[string]any, len(raw))
	for suffix, value := range raw {
		v, err := decodeJSON(value)
		if err != nil {
			return nil, errFormulaFailure(err, "decode transformation map %s/%s", address, namePrefix)
		}
		out[suffix] = v
	}
	return out, nil
}

// GetDateFirstTransformed reads ascending and bypasses the memo (spec I4).
func (e *Env) GetDateFirstTransformed(address, name string) (*time.Time, error) {
	e.recorder.Record(NamespaceTransformation, address, name, false)
	t, err := e.store.TransformationDateFirst(e.ctx, address, name, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "TransformationDateFirst(%s,%s)", address, name)
	}
	if t != nil {
		e.fetchNotify(1)
	}
	return t, nil
}

// PrefetchRequest describes one batched load for Prefetch.
type PrefetchRequest struct {
	Address string
	Keys    []any // composed via ComposeKey; if Prefix, Keys form the prefix's segments
	Prefix  bool
}

// Prefetch warms the point/prefix memo for a batch of requests so formula
// code issuing many small Get/GetMap calls afterward hits memory instead of
// the database (spec §4.3 "prefetch").
func (e *Env) Prefetch(requests []PrefetchRequest) error {
	for _, req := range requests {
		if req.Prefix {
			// A trailing empty segment length-prefixes every given segment,
			// so a one-segment prefix equals the mapKeyPrefix GetMap uses.
			key, err := ComposeKey(append(append([]any{}, req.Keys...), "")...)
			if err != nil {
				return errFormulaFailure(err, "compose prefix for Prefetch(%s)", req.Address)
			}
			dependentKey := DependentKey(NamespaceWasmState, req.Address, string(key))
			e.recorder.RecordKey(dependentKey, true)
			if entry, ok := e.prefixMemo[dependentKey]; ok && entry.fetched {
				continue
			}
			values, err := e.store.WasmStateMap(e.ctx, req.Address, key, e.Block.Height)
			if err != nil {
				return errTransport(err, "WasmStateMap prefetch(%s)", req.Address)
			}
			e.prefixMemo[dependentKey] = &prefixMemoEntry{fetched: true, values: values}
			e.fetchNotify(len(values))
			continue
		}
		key, err := ComposeKey(req.Keys...)
		if err != nil {
			return errFormulaFailure(err, "compose key for Prefetch(%s)", req.Address)
		}
		dependentKey := DependentKey(NamespaceWasmState, req.Address, string(key))
		e.recorder.RecordKey(dependentKey, false)
		if _, ok := e.pointMemo[dependentKey]; ok {
			continue
		}
		value, deleted, found, err := e.store.WasmStatePoint(e.ctx, req.Address, key, e.Block.Height)
		if err != nil {
			return errTransport(err, "WasmStatePoint prefetch(%s)", req.Address)
		}
		e.pointMemo[dependentKey] = &pointMemoEntry{tried: true, found: found, deleted: deleted, value: value}
		if found {
			e.fetchNotify(1)
		}
	}
	return nil
}

// PrefetchTransformationRequest describes one batched transformation load.
type PrefetchTransformationRequest struct {
	Address    string
	NamePrefix string
}

// PrefetchTransformations calls GetTransformationMap once per request,
// recording each request's dependency and issuing its query up front.
// Transformation reads have no per-evaluation memo, so the results are not
// kept: a later GetTransformationMap for the same address and prefix
// queries the store again.
func (e *Env) PrefetchTransformations(requests []PrefetchTransformationRequest) error {
	for _, req := range requests {
		if _, err := e.GetTransformationMap(req.Address, req.NamePrefix); err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) resolveCodeIDs(keys []string) (map[uint64]bool, error) {
	out := map[uint64]bool{}
	for _, k := range keys {
		ids, ok := e.codeIDCatalogue[k]
		if !ok {
			return nil, errFormulaFailure(nil, "unknown codeIdsKey %q", k)
		}
		for _, id := range ids {
			out[id] = true
		}
	}
	return out, nil
}

func (e *Env) getContractMemoized(address string) (*store.Contract, error) {
	if entry, ok := e.contractMemo[address]; ok {
		return entry.contract, nil
	}
	contract, err := e.store.Contract(e.ctx, address)
	if err != nil {
		return nil, errTransport(err, "Contract(%s)", address)
	}
	e.contractMemo[address] = &contractMemoEntry{tried: true, contract: contract}
	if contract != nil {
		e.fetchNotify(1)
	}
	return contract, nil
}

// GetContract returns the contract record iff its code id is in the set
// resolved from codeIdsKeys (or unconditionally when codeIdsKeys is empty).
func (e *Env) GetContract(address string, codeIdsKeys []string) (*store.Contract, error) {
	contract, err := e.getContractMemoized(address)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, nil
	}
	if len(codeIdsKeys) == 0 {
		return contract, nil
	}
	ids, err := e.resolveCodeIDs(codeIdsKeys)
	if err != nil {
		return nil, err
	}
	if !ids[contract.CodeID] {
		return nil, nil
	}
	return contract, nil
}

// ContractMatchesCodeIdKeys is the boolean variant of GetContract's filter.
func (e *Env) ContractMatchesCodeIdKeys(address string, codeIdsKeys []string) (bool, error) {
	c, err := e.GetContract(address, codeIdsKeys)
	if err != nil {
		return false, err
	}
	return c != nil, nil
}

// GetCodeIdKeyForContract returns the first codeIdsKeys name whose resolved
// set contains the contract's code id.
func (e *Env) GetCodeIdKeyForContract(address string, codeIdsKeys []string) (string, bool, error) {
	contract, err := e.getContractMemoized(address)
	if err != nil {
		return "", false, err
	}
	if contract == nil {
		return "", false, nil
	}
	for _, k := range codeIdsKeys {
		ids, ok := e.codeIDCatalogue[k]
		if !ok {
			continue
		}
		for _, id := range ids {
			if id == contract.CodeID {
				return k, true, nil
			}
		}
	}
	return "", false, nil
}

// GetBalance prefers the BankBalance snapshot, falling back to per-denom
// BankStateEvent history only when address is a contract whose code id is
// in the configured history-tracking set (spec I3).
func (e *Env) GetBalance(address, denom string) (string, bool, error) {
	e.recorder.Record(NamespaceBankBalance, address, "", false)
	snap, err := e.store.BankBalanceSnapshot(e.ctx, address, e.Block.Height)
	if err != nil {
		return "", false, errTransport(err, "BankBalanceSnapshot(%s)", address)
	}
	if snap != nil {
		e.fetchNotify(1)
		var balances map[string]string
		if err := json.Unmarshal(snap.Balances, &balances); err != nil {
			return "", false, errFormulaFailure(err, "decode bank balances for %s", address)
		}
		v, ok := balances[denom]
		return v, ok, nil
	}

	if !e.trackBankHistory(address) {
		return "", false, nil
	}
	e.recorder.Record(NamespaceBankState, address, denom, false)
	row, err := e.store.BankStateHistory(e.ctx, address, denom, e.Block.Height)
	if err != nil {
		return "", false, errTransport(err, "BankStateHistory(%s,%s)", address, denom)
	}
	if row == nil {
		return "", false, nil
	}
	e.fetchNotify(1)
	return row.Balance, true, nil
}

// GetBalances returns every denom balance for address, same fallback rule
// as GetBalance.
func (e *Env) GetBalances(address string) (map[string]string, error) {
	e.recorder.Record(NamespaceBankBalance, address, "", false)
	snap, err := e.store.BankBalanceSnapshot(e.ctx, address, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "BankBalanceSnapshot(%s)", address)
	}
	if snap != nil {
		e.fetchNotify(1)
		var balances map[string]string
		if err := json.Unmarshal(snap.Balances, &balances); err != nil {
			return nil, errFormulaFailure(err, "decode bank balances for %s", address)
		}
		return balances, nil
	}

	if !e.trackBankHistory(address) {
		return map[string]string{}, nil
	}
	e.recorder.Record(NamespaceBankState, address, "", true)
	rows, err := e.store.BankStateHistoryAll(e.ctx, address, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "BankStateHistoryAll(%s)", address)
	}
	e.fetchNotify(len(rows))
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Denom] = row.Balance
	}
	return out, nil
}

func (e *Env) trackBankHistory(address string) bool {
	contract, err := e.getContractMemoized(address)
	if err != nil || contract == nil {
		return false
	}
	return e.bankHistoryCodeIDs[contract.CodeID]
}

// GetSlashEvents returns a validator's slashes, descending by
// registeredBlockHeight, with a prefix dependency on the validator so any
// new slash invalidates the computation.
func (e *Env) GetSlashEvents(validator string) ([]store.StakingSlashEvent, error) {
	e.recorder.Record(NamespaceStakingSlash, validator, "", true)
	rows, err := e.store.SlashEvents(e.ctx, validator, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "SlashEvents(%s)", validator)
	}
	e.fetchNotify(len(rows))
	return rows, nil
}

// GetTxEvents returns an address's wasm tx events, descending, always
// recording a prefix dependency so any new tx invalidates the computation
// (spec §4.3: "adds a prefix dependency so the computation is invalidated
// by any new tx for the address").
func (e *Env) GetTxEvents(address, where string) ([]store.WasmTxEvent, error) {
	e.recorder.Record(NamespaceWasmTx, address, "", true)
	rows, err := e.store.TxEvents(e.ctx, address, e.Block.Height, where)
	if err != nil {
		return nil, errTransport(err, "TxEvents(%s)", address)
	}
	e.fetchNotify(len(rows))
	return rows, nil
}

// GetProposal returns one governance proposal's effective snapshot.
func (e *Env) GetProposal(proposalID uint64) (*store.GovProposal, error) {
	e.recorder.Record(NamespaceGovProposal, fmt.Sprint(proposalID), "", false)
	row, err := e.store.Proposal(e.ctx, proposalID, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "Proposal(%d)", proposalID)
	}
	if row != nil {
		e.fetchNotify(1)
	}
	return row, nil
}

// GetProposals returns every proposal's effective snapshot, paginated.
func (e *Env) GetProposals(ascending bool, limit, offset int) ([]store.GovProposal, error) {
	e.recorder.Record(NamespaceGovProposal, "", "", true)
	rows, err := e.store.Proposals(e.ctx, e.Block.Height, ascending, limit, offset)
	if err != nil {
		return nil, errTransport(err, "Proposals()")
	}
	e.fetchNotify(len(rows))
	return rows, nil
}

// GetProposalCount returns the number of distinct proposals visible at the
// target block.
func (e *Env) GetProposalCount() (int64, error) {
	e.recorder.Record(NamespaceGovProposal, "", "", true)
	n, err := e.store.ProposalCount(e.ctx, e.Block.Height)
	if err != nil {
		return 0, errTransport(err, "ProposalCount()")
	}
	return n, nil
}

// GetProposalVote returns one voter's vote on a proposal.
func (e *Env) GetProposalVote(proposalID uint64, voter string) (*store.GovProposalVote, error) {
	e.recorder.Record(NamespaceGovVote, fmt.Sprint(proposalID), voter, false)
	row, err := e.store.ProposalVote(e.ctx, proposalID, voter, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "ProposalVote(%d,%s)", proposalID, voter)
	}
	if row != nil {
		e.fetchNotify(1)
	}
	return row, nil
}

// GetProposalVotes returns every vote on a proposal. Ties at the same
// blockHeight break by (voter asc, proposal asc), per the §9 open question
// decision recorded in DESIGN.md.
func (e *Env) GetProposalVotes(proposalID uint64, ascending bool, limit, offset int) ([]store.GovProposalVote, error) {
	e.recorder.Record(NamespaceGovVote, fmt.Sprint(proposalID), "", true)
	rows, err := e.store.ProposalVotes(e.ctx, proposalID, e.Block.Height, ascending, limit, offset)
	if err != nil {
		return nil, errTransport(err, "ProposalVotes(%d)", proposalID)
	}
	e.fetchNotify(len(rows))
	return rows, nil
}

// GetProposalVoteCount returns the number of distinct voters on a proposal.
func (e *Env) GetProposalVoteCount(proposalID uint64) (int64, error) {
	e.recorder.Record(NamespaceGovVote, fmt.Sprint(proposalID), "", true)
	n, err := e.store.ProposalVoteCount(e.ctx, proposalID, e.Block.Height)
	if err != nil {
		return 0, errTransport(err, "ProposalVoteCount(%d)", proposalID)
	}
	return n, nil
}

// GetCommunityPoolBalances returns the single most-recent snapshot row.
func (e *Env) GetCommunityPoolBalances() (map[string]string, error) {
	e.recorder.Record(NamespaceCommunityPool, "", "", false)
	row, err := e.store.CommunityPoolBalances(e.ctx, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "CommunityPoolBalances()")
	}
	if row == nil {
		return nil, nil
	}
	e.fetchNotify(1)
	var balances map[string]string
	if err := json.Unmarshal(row.Balances, &balances); err != nil {
		return nil, errFormulaFailure(err, "decode community pool balances")
	}
	return balances, nil
}

// GetExtraction returns a named extraction for an address.
func (e *Env) GetExtraction(address, name string) (any, error) {
	e.recorder.Record(NamespaceExtraction, address, name, false)
	row, err := e.store.Extraction(e.ctx, address, name, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "Extraction(%s,%s)", address, name)
	}
	if row == nil {
		return nil, nil
	}
	e.fetchNotify(1)
	return decodeJSON(row.Value)
}

// GetFeegrantAllowance returns the allowance for a (granter, grantee) pair.
// The dependent key uses the '*' sentinel on whichever side is wildcarded,
// per the §9 decision: here both sides are known, so no sentinel is used.
func (e *Env) GetFeegrantAllowance(granter, grantee string) (any, error) {
	e.recorder.RecordKey(DependentKey(NamespaceFeegrant, feegrantKey(granter, grantee), ""), false)
	row, err := e.store.FeegrantAllowance(e.ctx, granter, grantee, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "FeegrantAllowance(%s,%s)", granter, grantee)
	}
	if row == nil || row.Revoked {
		return nil, nil
	}
	e.fetchNotify(1)
	return decodeJSON(row.Allowance)
}

// GetFeegrantAllowances returns every allowance granted-by or granted-to
// address (granted=true means "allowances address granted to others").
func (e *Env) GetFeegrantAllowances(address string, granted bool) ([]store.FeegrantAllowance, error) {
	var suffix string
	if granted {
		suffix = feegrantKey(address, "")
	} else {
		suffix = feegrantKey("", address)
	}
	e.recorder.RecordKey(DependentKey(NamespaceFeegrant, suffix, ""), true)
	rows, err := e.store.FeegrantAllowances(e.ctx, address, granted, e.Block.Height)
	if err != nil {
		return nil, errTransport(err, "FeegrantAllowances(%s)", address)
	}
	e.fetchNotify(len(rows))
	return rows, nil
}

// HasFeegrantAllowance is the boolean variant of GetFeegrantAllowance.
func (e *Env) HasFeegrantAllowance(granter, grantee string) (bool, error) {
	v, err := e.GetFeegrantAllowance(granter, grantee)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// Query is the read-only escape hatch (spec §4.3 "query"): callers are
// responsible for any blockHeight filter, and no dependency is recorded.
func (e *Env) Query(sql string, binds []any) ([]map[string]any, error) {
	rows, err := e.store.Query(e.ctx, sql, binds)
	if err != nil {
		return nil, errTransport(err, "Query")
	}
	e.fetchNotify(len(rows))
	return rows, nil
}
