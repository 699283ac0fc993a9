package formula

import (
	"context"
	"time"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/store"
)

// RangeInput is everything ComputeRange needs (C6, spec §4.6).
type RangeInput struct {
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

	CodeIDCatalogue    map[string][]uint64
	BankHistoryCodeIDs map[uint64]bool

	BlockStart chain.Block
	BlockEnd   chain.Block

	// StartOverride lets the Computation Cache's range-reuse protocol seed
	// the first emitted piece from a previously stored computation whose
	// block is earlier than BlockStart but whose validity interval covers
	// it (spec §4.6: "the first emitted piece's block may be earlier than
	// blockStart").
	StartOverride *Result
}

// ComputeRange yields the piecewise-constant series covering
// [BlockStart, BlockEnd] (C6).
func ComputeRange(ctx context.Context, in RangeInput) ([]*Result, error) {
	reg, err := in.Registry.Lookup(in.Type, in.Name)
	if err != nil {
		return nil, err
	}
	if reg.Dynamic {
		return nil, errNotApplicable("formula %s/%s is dynamic and cannot be evaluated over a range", in.Type, in.Name)
	}
	if in.BlockEnd.Height < in.BlockStart.Height {
		return nil, errBadInput("blockEnd %d precedes blockStart %d", in.BlockEnd.Height, in.BlockStart.Height)
	}

	var pieces []*Result
	cursor := in.BlockStart

	if in.StartOverride != nil {
		pieces = append(pieces, in.StartOverride)
		if in.StartOverride.LatestBlockHeightValid >= in.BlockEnd.Height {
			return pieces, nil
		}
		next, err := blockAt(ctx, in.Store, in.StartOverride.LatestBlockHeightValid+1)
		if err != nil {
			return nil, err
		}
		cursor = next
	}

	for {
		single, err := Compute(ctx, Input{
			Type:                     in.Type,
			Name:                     in.Name,
			ChainID:                  in.ChainID,
			TargetAddress:            in.TargetAddress,
			Args:                     in.Args,
			Block:                    cursor,
			UseBlockDate:             in.UseBlockDate,
			Now:                      in.Now,
			Store:                    in.Store,
			Registry:                 in.Registry,
			OnFetch:                  in.OnFetch,
			CodeIDCatalogue:          in.CodeIDCatalogue,
			BankHistoryCodeIDs:       in.BankHistoryCodeIDs,
			CurrentLatestBlockHeight: in.BlockEnd.Height,
		})
		if err != nil {
			return nil, err
		}
		// Compute() bounds validity at in.BlockEnd.Height by construction
		// (CurrentLatestBlockHeight above), matching step 1's "highest
		// block <= blockEnd" requirement.
		pieces = append(pieces, single)

		allDeps := append(append([]Dependency{}, single.DependentEvents...), single.DependentTransformations...)
		nextChange, err := nextChangeHeight(ctx, in.Store, allDeps, single.LatestBlockHeightValid, in.BlockEnd.Height)
		if err != nil {
			return nil, err
		}
		if nextChange == 0 || nextChange > in.BlockEnd.Height {
			return pieces, nil
		}
		next, err := blockAt(ctx, in.Store, nextChange)
		if err != nil {
			return nil, err
		}
		cursor = next
	}
}

// nextChangeHeight returns the minimum blockHeight strictly greater than
// afterHeight at which any recorded dependency changes, capped at
// capHeight. Returns 0 if there is none within bounds.
func nextChangeHeight(ctx context.Context, adapter store.Adapter, deps []Dependency, afterHeight, capHeight uint64) (uint64, error) {
	var min uint64
	for _, d := range deps {
		ns, subject, suffix := SplitDependentKey(d.Key)
		heights, err := adapter.ChangedEventHeights(ctx, ns, subject, suffix, d.Prefix, afterHeight, capHeight)
		if err != nil {
			return 0, errTransport(err, "ChangedEventHeights(%s)", d.Key)
		}
		if len(heights) == 0 {
			continue
		}
		if min == 0 || heights[0] < min {
			min = heights[0]
		}
	}
	return min, nil
}

// blockAt resolves a Block coordinate from a height via the Block table.
// Falls back to a zero-timestamp Block if the exact row is missing (can
// happen in sparse test fixtures); height is always authoritative.
func blockAt(ctx context.Context, adapter store.Adapter, height uint64) (chain.Block, error) {
	row, err := adapter.BlockByHeight(ctx, height)
	if err != nil {
		return chain.Block{}, errTransport(err, "BlockByHeight(%d)", height)
	}
	if row == nil {
		return chain.Block{Height: height}, nil
	}
	return chain.Block{Height: row.Height, TimeUnixMs: row.TimeUnixMs}, nil
}
