// Package codeids loads the static name->code-id-set mapping that backs
// formula §4.3's GetContract(address, codeIdsKeysFilter) and §4.4's
// filter.codeIdsKeys: spec.md presupposes such a resolver but leaves its
// storage unspecified (SPEC_FULL.md "SUPPLEMENTED FEATURES"). Encoded as
// YAML, the one piece of this service's configuration that is naturally a
// document rather than an environment variable.
package codeids

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalogue is the parsed allow-list: a name (e.g. "dao-core") to the set
// of code ids it matches, plus the subset of those names whose contracts
// should fall back to per-denom BankStateEvent history (spec I3).
type Catalogue struct {
	Keys             map[string][]uint64 `yaml:"keys"`
	BankHistoryNames []string            `yaml:"bankHistoryNames"`
}

// Load reads and parses a Catalogue from a YAML file at path.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codeids: read %s: %w", path, err)
	}
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("codeids: parse %s: %w", path, err)
	}
	return &cat, nil
}

// BankHistoryCodeIDs flattens BankHistoryNames into the set of code ids the
// Environment should treat as bank-history-tracked (spec I3 "configured
// track bank history set").
func (c *Catalogue) BankHistoryCodeIDs() map[uint64]bool {
	out := map[uint64]bool{}
	for _, name := range c.BankHistoryNames {
		for _, id := range c.Keys[name] {
			out[id] = true
		}
	}
	return out
}
