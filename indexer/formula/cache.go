package formula

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/store"
)

// Cache is the persistent memo of prior results described in spec §4.7 (C7):
// it stores Computation rows and extends their validity interval in place
// rather than re-running a formula whose inputs provably have not changed.
//
// Single-block compute() results are deliberately never written here (spec
// §9: "the source leaves single-block cache writes commented out"); only
// ComputeRangeCached persists pieces. Callers that want a cached point
// lookup should go through ComputeRangeCached with BlockStart==BlockEnd.
type Cache struct {
	db      *gorm.DB
	adapter store.Adapter
}

// NewCache constructs a Cache backed by db for persistence and adapter for
// the dependency-change queries UpdateValidityUpToBlockHeight needs.
func NewCache(db *gorm.DB, adapter store.Adapter) *Cache {
	return &Cache{db: db, adapter: adapter}
}

// Canonicalize produces the stable, key-sorted JSON encoding of args used as
// part of a Computation's natural key (spec §4.7).
func Canonicalize(args map[string]string) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]string, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}
	// The encoding is stable because encoding/json.Marshal writes map keys
	// in sorted order; copying into ordered does not itself fix an order.
	b, _ := json.Marshal(ordered)
	return string(b)
}

// UpdateValidityUpToBlockHeight extends comp's validity in place: if no
// recorded dependency has a row in (comp.LatestBlockHeightValid, H], it sets
// LatestBlockHeightValid = H, persists, and returns true; otherwise it
// leaves comp untouched and returns false (spec §4.7, property P3).
func (c *Cache) UpdateValidityUpToBlockHeight(ctx context.Context, comp *store.Computation, h uint64) (bool, error) {
	if h <= comp.LatestBlockHeightValid {
		return true, nil
	}
	for _, dep := range comp.Dependencies {
		ns, subject, suffix := SplitDependentKey(dep.DependentKey)
		heights, err := c.adapter.ChangedEventHeights(ctx, ns, subject, suffix, dep.Prefix, comp.LatestBlockHeightValid, h)
		if err != nil {
			return false, errTransport(err, "ChangedEventHeights(%s)", dep.DependentKey)
		}
		if len(heights) > 0 {
			return false, nil
		}
	}
	comp.LatestBlockHeightValid = h
	if err := c.db.WithContext(ctx).Model(comp).Update("latest_block_height_valid", h).Error; err != nil {
		return false, errTransport(err, "update computation %s validity", comp.ID)
	}
	return true, nil
}

// RangeCacheInput is everything ComputeRangeCached needs to run the range
// reuse protocol (spec §4.7).
type RangeCacheInput struct {
	Type          Type
	Name          string
	ChainID       string
	TargetAddress string
	Args          map[string]string
	UseBlockDate  bool
	Now           time.Time

	Store    store.Adapter
	Registry *Registry
	OnFetch  func(rowCount int)

	// OnCacheOutcome, if set, is called once per ComputeRangeCached call
	// with one of "miss" (no stored chain, full recompute), "discontinuous"
	// (stored chain existed but had a gap, full recompute), "reused" (stored
	// chain already covered BlockEnd), "extended" (validity extended in
	// place with no recompute), or "tail" (a partial recompute appended to
	// a reused prefix). Lets the HTTP layer report range-reuse outcomes
	// (spec §4.7) without this package depending on a metrics library.
	OnCacheOutcome func(outcome string)

	CodeIDCatalogue    map[string][]uint64
	BankHistoryCodeIDs map[uint64]bool

	BlockStart chain.Block
	BlockEnd   chain.Block
}

func (in RangeCacheInput) reportOutcome(outcome string) {
	if in.OnCacheOutcome != nil {
		in.OnCacheOutcome(outcome)
	}
}

// ComputeRangeCached implements the range reuse protocol: find the most
// recent stored computation at or before BlockStart, load the stored chain
// covering (BlockStart, BlockEnd], and either extend/reuse it or fall back
// to a full ComputeRange. Newly produced pieces are persisted before
// returning.
func (c *Cache) ComputeRangeCached(ctx context.Context, in RangeCacheInput) ([]*Result, error) {
	argsCanonical := Canonicalize(in.Args)

	existingStart, err := c.mostRecentAtOrBefore(ctx, in.TargetAddress, in.Type, in.Name, argsCanonical, in.BlockStart.Height)
	if err != nil {
		return nil, err
	}
	if existingStart == nil {
		in.reportOutcome("miss")
		return c.computeAndPersistFullRange(ctx, in, argsCanonical)
	}

	stored, err := c.loadRangeAscending(ctx, in.TargetAddress, in.Type, in.Name, argsCanonical, in.BlockStart.Height, in.BlockEnd.Height)
	if err != nil {
		return nil, err
	}

	chainRows := append([]*store.Computation{existingStart}, stored...)
	if !isContinuousChain(chainRows) {
		in.reportOutcome("discontinuous")
		return c.computeAndPersistFullRange(ctx, in, argsCanonical)
	}

	last := chainRows[len(chainRows)-1]
	if last.LatestBlockHeightValid >= in.BlockEnd.Height {
		in.reportOutcome("reused")
		return toResults(chainRows)
	}

	extended, err := c.UpdateValidityUpToBlockHeight(ctx, last, in.BlockEnd.Height)
	if err != nil {
		return nil, err
	}
	if extended {
		in.reportOutcome("extended")
		return toResults(chainRows)
	}

	lastBlock, err := blockAt(ctx, in.Store, last.BlockHeight)
	if err != nil {
		return nil, err
	}
	tail, err := ComputeRange(ctx, RangeInput{
		Type:               in.Type,
		Name:               in.Name,
		ChainID:            in.ChainID,
		TargetAddress:      in.TargetAddress,
		Args:               in.Args,
		UseBlockDate:       in.UseBlockDate,
		Now:                in.Now,
		Store:              in.Store,
		Registry:           in.Registry,
		OnFetch:            in.OnFetch,
		CodeIDCatalogue:    in.CodeIDCatalogue,
		BankHistoryCodeIDs: in.BankHistoryCodeIDs,
		BlockStart:         lastBlock,
		BlockEnd:           in.BlockEnd,
	})
	if err != nil {
		return nil, err
	}
	if len(tail) > 0 {
		// tail[0] recomputes the already-stored last piece (spec §4.7 step
		// 4: "dropping its first result, which duplicates the tail"). Its
		// value is dropped but its validity bound is kept, so the stored
		// chain stays continuous into tail[1].
		if tail[0].LatestBlockHeightValid > last.LatestBlockHeightValid {
			if err := c.db.WithContext(ctx).Model(last).Update("latest_block_height_valid", tail[0].LatestBlockHeightValid).Error; err != nil {
				return nil, errTransport(err, "update computation %s validity", last.ID)
			}
			last.LatestBlockHeightValid = tail[0].LatestBlockHeightValid
		}
		tail = tail[1:]
	}
	for _, piece := range tail {
		if _, err := c.persist(ctx, in.TargetAddress, in.Type, in.Name, argsCanonical, piece); err != nil {
			return nil, err
		}
	}

	results, err := toResults(chainRows[:len(chainRows)-1])
	if err != nil {
		return nil, err
	}
	lastResult, err := toResult(last)
	if err != nil {
		return nil, err
	}
	results = append(results, lastResult)
	results = append(results, tail...)
	in.reportOutcome("tail")
	return results, nil
}

func (c *Cache) computeAndPersistFullRange(ctx context.Context, in RangeCacheInput, argsCanonical string) ([]*Result, error) {
	pieces, err := ComputeRange(ctx, RangeInput{
		Type:               in.Type,
		Name:               in.Name,
		ChainID:            in.ChainID,
		TargetAddress:      in.TargetAddress,
		Args:               in.Args,
		UseBlockDate:       in.UseBlockDate,
		Now:                in.Now,
		Store:              in.Store,
		Registry:           in.Registry,
		OnFetch:            in.OnFetch,
		CodeIDCatalogue:    in.CodeIDCatalogue,
		BankHistoryCodeIDs: in.BankHistoryCodeIDs,
		BlockStart:         in.BlockStart,
		BlockEnd:           in.BlockEnd,
	})
	if err != nil {
		return nil, err
	}
	for _, piece := range pieces {
		if _, err := c.persist(ctx, in.TargetAddress, in.Type, in.Name, argsCanonical, piece); err != nil {
			return nil, err
		}
	}
	return pieces, nil
}

func isContinuousChain(rows []*store.Computation) bool {
	for i := 0; i < len(rows)-1; i++ {
		if rows[i].LatestBlockHeightValid != rows[i+1].BlockHeight-1 {
			return false
		}
	}
	return true
}

func (c *Cache) mostRecentAtOrBefore(ctx context.Context, targetAddress string, typ Type, name, argsCanonical string, height uint64) (*store.Computation, error) {
	var row store.Computation
	err := c.db.WithContext(ctx).
		Preload("Dependencies").
		Where("target_address = ? AND formula_type = ? AND formula_name = ? AND args = ? AND block_height <= ?", targetAddress, string(typ), name, argsCanonical, height).
		Order("block_height DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errTransport(err, "load most recent computation")
	}
	return &row, nil
}

func (c *Cache) loadRangeAscending(ctx context.Context, targetAddress string, typ Type, name, argsCanonical string, fromHeightExclusive, toHeightInclusive uint64) ([]*store.Computation, error) {
	var rows []store.Computation
	err := c.db.WithContext(ctx).
		Preload("Dependencies").
		Where("target_address = ? AND formula_type = ? AND formula_name = ? AND args = ? AND block_height > ? AND block_height <= ?", targetAddress, string(typ), name, argsCanonical, fromHeightExclusive, toHeightInclusive).
		Order("block_height ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errTransport(err, "load computation range")
	}
	out := make([]*store.Computation, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// persist idempotently upserts a Result as a Computation row keyed by its
// natural key (targetAddress, formula, canonicalArgs, block), matching the
// concurrency model's "Computation table uses a natural key ... with
// idempotent upsert" (spec §5).
func (c *Cache) persist(ctx context.Context, targetAddress string, typ Type, name, argsCanonical string, result *Result) (*store.Computation, error) {
	output, isNull, err := encodeOutput(result.Value)
	if err != nil {
		return nil, errFormulaFailure(err, "encode computation output")
	}

	row := &store.Computation{
		ID:                     uuid.NewString(),
		TargetAddress:          targetAddress,
		FormulaType:            string(typ),
		FormulaName:            name,
		Args:                   argsCanonical,
		BlockHeight:            result.Block.Height,
		BlockTimeUnixMs:        result.Block.TimeUnixMs,
		Output:                 output,
		OutputIsNull:           isNull,
		LatestBlockHeightValid: result.LatestBlockHeightValid,
	}
	for _, d := range result.DependentEvents {
		row.Dependencies = append(row.Dependencies, store.ComputationDependency{DependentKey: d.Key, Prefix: d.Prefix})
	}
	for _, d := range result.DependentTransformations {
		row.Dependencies = append(row.Dependencies, store.ComputationDependency{DependentKey: d.Key, Prefix: d.Prefix})
	}

	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_address"}, {Name: "formula_type"}, {Name: "formula_name"}, {Name: "args"}, {Name: "block_height"}},
		DoUpdates: clause.AssignmentColumns([]string{"output", "output_is_null", "latest_block_height_valid"}),
	}).Create(row).Error
	if err != nil {
		return nil, errTransport(err, "persist computation")
	}
	return row, nil
}

func toResults(rows []*store.Computation) ([]*Result, error) {
	out := make([]*Result, 0, len(rows))
	for _, row := range rows {
		r, err := toResult(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func toResult(row *store.Computation) (*Result, error) {
	value, err := decodeOutput(row.Output, row.OutputIsNull)
	if err != nil {
		return nil, errFormulaFailure(err, "decode cached computation output")
	}
	var events, transformations []Dependency
	for _, dep := range row.Dependencies {
		ns, _, _ := SplitDependentKey(dep.DependentKey)
		d := Dependency{Key: dep.DependentKey, Prefix: dep.Prefix}
		if ns == NamespaceTransformation {
			transformations = append(transformations, d)
		} else {
			events = append(events, d)
		}
	}
	return &Result{
		Block:                    chain.Block{Height: row.BlockHeight, TimeUnixMs: row.BlockTimeUnixMs},
		Value:                    value,
		DependentEvents:          events,
		DependentTransformations: transformations,
		LatestBlockHeightValid:   row.LatestBlockHeightValid,
	}, nil
}

func encodeOutput(value any) ([]byte, bool, error) {
	if value == nil {
		return nil, true, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, false, err
	}
	return b, false, nil
}

func decodeOutput(raw []byte, isNull bool) (any, error) {
	if isNull || raw == nil {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
