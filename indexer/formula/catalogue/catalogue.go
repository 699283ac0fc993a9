// Package catalogue registers the concrete formulas exercised by
// services/query-gateway. Each gives at least one Environment getter from
// spec §4.3 a real caller, the way S1-S6's scenarios presuppose runnable
// formulas rather than just an API surface.
package catalogue

import (
	"fmt"
	"strconv"
	"time"

	"chainindexer/indexer/formula"
)

// Register adds every built-in formula to r. Call once at startup.
func Register(r *formula.Registry) {
	registerContractFormulas(r)
	registerAccountFormulas(r)
	registerValidatorFormulas(r)
	registerGenericFormulas(r)
}

func registerContractFormulas(r *formula.Registry) {
	// "info" has no code-id filter: any contract formula may need to read
	// its own code id before deciding whether it applies to itself.
	r.Register(formula.Registration{
		Type: formula.TypeContract,
		Name: "info",
		Compute: func(env *formula.Env) (any, error) {
			contract, err := env.GetContract(env.TargetAddress, nil)
			if err != nil {
				return nil, err
			}
			if contract == nil {
				return nil, nil
			}
			return map[string]any{
				"address": contract.Address,
				"codeId":  contract.CodeID,
			}, nil
		},
	})

	// "item" is a thin pass-through over arbitrary wasm state, keyed by
	// the "key" arg, demonstrating Get against raw contract storage.
	r.Register(formula.Registration{
		Type: formula.TypeContract,
		Name: "item",
		Compute: func(env *formula.Env) (any, error) {
			key, ok := env.Args["key"]
			if !ok || key == "" {
				return nil, fmt.Errorf("missing required arg %q", "key")
			}
			return env.Get(env.TargetAddress, key)
		},
	})

	// "itemsUnder" demonstrates GetMap, returning every entry under a map
	// name prefix decoded with the string key type.
	r.Register(formula.Registration{
		Type: formula.TypeContract,
		Name: "itemsUnder",
		Compute: func(env *formula.Env) (any, error) {
			name, ok := env.Args["name"]
			if !ok || name == "" {
				return nil, fmt.Errorf("missing required arg %q", "name")
			}
			return env.GetMap(env.TargetAddress, name, formula.GetMapOptions{KeyType: formula.KeyTypeString})
		},
	})

	// "transformation" demonstrates GetTransformationMatch.
	r.Register(formula.Registration{
		Type: formula.TypeContract,
		Name: "transformation",
		Compute: func(env *formula.Env) (any, error) {
			nameLike, ok := env.Args["name"]
			if !ok || nameLike == "" {
				return nil, fmt.Errorf("missing required arg %q", "name")
			}
			address := env.TargetAddress
			result, err := env.GetTransformationMatch(&address, nameLike, nil, nil)
			if err != nil {
				return nil, err
			}
			if result == nil {
				return nil, nil
			}
			return result.Value, nil
		},
	})
}

func registerAccountFormulas(r *formula.Registry) {
	r.Register(formula.Registration{
		Type: formula.TypeAccount,
		Name: "balance",
		Compute: func(env *formula.Env) (any, error) {
			denom, ok := env.Args["denom"]
			if !ok || denom == "" {
				return nil, fmt.Errorf("missing required arg %q", "denom")
			}
			value, found, err := env.GetBalance(env.TargetAddress, denom)
			if err != nil {
				return nil, err
			}
			if !found {
				return "0", nil
			}
			return value, nil
		},
	})

	r.Register(formula.Registration{
		Type: formula.TypeAccount,
		Name: "balances",
		Compute: func(env *formula.Env) (any, error) {
			return env.GetBalances(env.TargetAddress)
		},
	})

	r.Register(formula.Registration{
		Type: formula.TypeAccount,
		Name: "feegrantsGranted",
		Compute: func(env *formula.Env) (any, error) {
			return env.GetFeegrantAllowances(env.TargetAddress, true)
		},
	})

	r.Register(formula.Registration{
		Type: formula.TypeAccount,
		Name: "feegrantsReceived",
		Compute: func(env *formula.Env) (any, error) {
			return env.GetFeegrantAllowances(env.TargetAddress, false)
		},
	})

	// "secondsSinceLastTx" is declared dynamic: its answer would change merely by
	// wall-clock passing (it reports age, not just tx count), so per spec
	// §4.4 it must never be cached or evaluated over a range (scenario S5).
	r.Register(formula.Registration{
		Type:    formula.TypeAccount,
		Name:    "secondsSinceLastTx",
		Dynamic: true,
		Compute: func(env *formula.Env) (any, error) {
			events, err := env.GetTxEvents(env.TargetAddress, "")
			if err != nil {
				return nil, err
			}
			if len(events) == 0 {
				return nil, nil
			}
			last := time.UnixMilli(int64(events[0].BlockTimeUnixMs)).UTC()
			return env.Date().Sub(last).Seconds(), nil
		},
	})
}

func registerValidatorFormulas(r *formula.Registry) {
	r.Register(formula.Registration{
		Type: formula.TypeValidator,
		Name: "slashes",
		Compute: func(env *formula.Env) (any, error) {
			return env.GetSlashEvents(env.TargetAddress)
		},
	})
}

func registerGenericFormulas(r *formula.Registry) {
	r.Register(formula.Registration{
		Type: formula.TypeGeneric,
		Name: "proposal",
		Compute: func(env *formula.Env) (any, error) {
			idStr, ok := env.Args["id"]
			if !ok {
				return nil, fmt.Errorf("missing required arg %q", "id")
			}
			id, err := strconv.ParseUint(idStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid proposal id %q: %w", idStr, err)
			}
			return env.GetProposal(id)
		},
	})

	r.Register(formula.Registration{
		Type: formula.TypeGeneric,
		Name: "proposals",
		Compute: func(env *formula.Env) (any, error) {
			limit := 0
			if v, ok := env.Args["limit"]; ok {
				if n, err := strconv.Atoi(v); err == nil {
					limit = n
				}
			}
			return env.GetProposals(false, limit, 0)
		},
	})

	r.Register(formula.Registration{
		Type: formula.TypeGeneric,
		Name: "proposalVotes",
		Compute: func(env *formula.Env) (any, error) {
			idStr, ok := env.Args["id"]
			if !ok {
				return nil, fmt.Errorf("missing required arg %q", "id")
			}
			id, err := strconv.ParseUint(idStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid proposal id %q: %w", idStr, err)
			}
			return env.GetProposalVotes(id, true, 0, 0)
		},
	})

	r.Register(formula.Registration{
		Type: formula.TypeGeneric,
		Name: "communityPool",
		Compute: func(env *formula.Env) (any, error) {
			return env.GetCommunityPoolBalances()
		},
	})
}
