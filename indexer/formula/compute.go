package formula

import (
	"context"
	"time"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/store"
)

// Result is what a single evaluation produces (C5, spec §4.5).
type Result struct {
	Block                    chain.Block
	Value                    any
	DependentEvents          []Dependency
	DependentTransformations []Dependency
	LatestBlockHeightValid   uint64
}

// Input is everything Compute needs to run one formula at one block.
type Input struct {
	Type          Type
	Name          string
	ChainID       string
	TargetAddress string
	Args          map[string]string
	Block         chain.Block
	UseBlockDate  bool
	Now           time.Time

	Store    store.Adapter
	Registry *Registry
	OnFetch  func(rowCount int)

	CodeIDCatalogue    map[string][]uint64
	BankHistoryCodeIDs map[uint64]bool

	// CurrentLatestBlockHeight is the indexer's visible chain head, used as
	// the fallback bound when no dependency ever changes again (spec §4.5
	// step 3: "if unbounded, use the indexer's current latestBlockHeight").
	CurrentLatestBlockHeight uint64
}

// Compute runs a single formula evaluation at one block (C5).
func Compute(ctx context.Context, in Input) (*Result, error) {
	reg, err := in.Registry.Lookup(in.Type, in.Name)
	if err != nil {
		return nil, err
	}

	if in.Type == TypeContract && reg.Filter != nil && len(reg.Filter.CodeIDsKeys) > 0 {
		ids := map[uint64]bool{}
		for _, k := range reg.Filter.CodeIDsKeys {
			for _, id := range in.CodeIDCatalogue[k] {
				ids[id] = true
			}
		}
		contract, err := in.Store.Contract(ctx, in.TargetAddress)
		if err != nil {
			return nil, errTransport(err, "Contract(%s)", in.TargetAddress)
		}
		if contract == nil {
			return nil, errNotFound("contract %s not found", in.TargetAddress)
		}
		if !ids[contract.CodeID] {
			return nil, errNotApplicable("contract %s (code id %d) does not satisfy formula %s's code-id filter", in.TargetAddress, contract.CodeID, in.Name)
		}
	}

	env := New(ctx, NewConfig{
		ChainID:            in.ChainID,
		Block:              in.Block,
		UseBlockDate:       in.UseBlockDate,
		Args:               in.Args,
		TargetAddress:      in.TargetAddress,
		Store:              in.Store,
		OnFetch:            in.OnFetch,
		Now:                in.Now,
		CodeIDCatalogue:    in.CodeIDCatalogue,
		BankHistoryCodeIDs: in.BankHistoryCodeIDs,
	})

	value, err := runFormula(reg.Compute, env)
	if err != nil {
		return nil, err
	}

	events, transformations := splitDependencies(env.Dependencies())

	valid, err := validityBound(ctx, in.Store, env.Dependencies(), in.Block.Height, in.CurrentLatestBlockHeight)
	if err != nil {
		return nil, err
	}

	return &Result{
		Block:                    in.Block,
		Value:                    value,
		DependentEvents:          events,
		DependentTransformations: transformations,
		LatestBlockHeightValid:   valid,
	}, nil
}

// runFormula invokes the formula body, converting both returned errors and
// recovered panics into a FormulaFailure user error (spec §4.5 step 2: "catch
// formula-internal failures and classify them as user errors"). An error or
// panic value that is already an *Error keeps its own Kind.
func runFormula(fn ComputeFunc, env *Env) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*Error); ok {
				err = fe
				return
			}
			err = errFormulaFailure(nil, "formula panicked: %v", r)
		}
	}()
	v, ferr := fn(env)
	if ferr != nil {
		if fe, ok := ferr.(*Error); ok {
			return nil, fe
		}
		return nil, errFormulaFailure(ferr, "formula returned an error")
	}
	return v, nil
}

func splitDependencies(deps []Dependency) (events, transformations []Dependency) {
	for _, d := range deps {
		ns, _, _ := SplitDependentKey(d.Key)
		if ns == NamespaceTransformation {
			transformations = append(transformations, d)
		} else {
			events = append(events, d)
		}
	}
	return events, transformations
}

// validityBound implements spec §4.5 step 3: the largest height H >=
// fromHeight such that no recorded dependency has a row strictly above
// fromHeight and at-or-below H, capped at capHeight.
func validityBound(ctx context.Context, adapter store.Adapter, deps []Dependency, fromHeight, capHeight uint64) (uint64, error) {
	if capHeight < fromHeight {
		capHeight = fromHeight
	}
	bound := capHeight
	for _, d := range deps {
		ns, subject, suffix := SplitDependentKey(d.Key)
		heights, err := adapter.ChangedEventHeights(ctx, ns, subject, suffix, d.Prefix, fromHeight, capHeight)
		if err != nil {
			return 0, errTransport(err, "ChangedEventHeights(%s)", d.Key)
		}
		if len(heights) == 0 {
			continue
		}
		next := heights[0]
		if next > 0 && next-1 < bound {
			bound = next - 1
		}
	}
	if bound < fromHeight {
		bound = fromHeight
	}
	return bound, nil
}
