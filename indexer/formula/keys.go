package formula

import "strings"

// DependentKey namespaces are the canonical identifiers spec §3 assigns one
// per event family. They double as the namespace argument to
// store.Adapter.ChangedEventHeights.
const (
	NamespaceWasmState      = "wasmState"
	NamespaceTransformation = "wasmStateTransformation"
	NamespaceWasmTx         = "wasmTx"
	NamespaceBankState      = "bankState"
	NamespaceBankBalance    = "bankBalance"
	NamespaceStakingSlash   = "stakingSlash"
	NamespaceGovProposal    = "govProposal"
	NamespaceGovVote        = "govProposalVote"
	NamespaceCommunityPool  = "communityPool"
	NamespaceExtraction     = "extraction"
	NamespaceFeegrant       = "feegrant"
)

// feegrantEitherSentinel is the opaque "either side" marker spec §9 asks to
// be treated as a literal segment, never glob-expanded, distinct from the
// '*' used by transformation name globs.
const feegrantEitherSentinel = "*"

// DependentKey builds the canonical "namespace:subject[:suffix]" string from
// spec §3. An empty suffix means "any subject-key within this namespace".
func DependentKey(namespace, subject, suffix string) string {
	if suffix == "" {
		return namespace + ":" + subject
	}
	return namespace + ":" + subject + ":" + suffix
}

// SplitDependentKey reverses DependentKey, returning namespace, subject, and
// suffix (suffix is "" when the key had no third segment).
func SplitDependentKey(key string) (namespace, subject, suffix string) {
	parts := strings.SplitN(key, ":", 3)
	switch len(parts) {
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], parts[2]
	}
}

// Dependency is one entry in a Recorder's list: a dependent key plus whether
// it matches exactly or by prefix (spec §3 "Dependent key").
type Dependency struct {
	Key    string
	Prefix bool
}

// Recorder is the per-evaluation append-only dependency list (C2, spec
// §4.2). It is passed explicitly through the Environment rather than
// captured implicitly by closures, per the §9 redesign note.
type Recorder struct {
	entries []Dependency
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends a dependency. Duplicates are tolerated; Dependencies
// dedupes them at persistence time.
func (r *Recorder) Record(namespace, subject, suffix string, prefix bool) {
	r.entries = append(r.entries, Dependency{
		Key:    DependentKey(namespace, subject, suffix),
		Prefix: prefix,
	})
}

// RecordKey appends a dependency using an already-composed dependent key,
// for callers (like the feegrant getters) that build the key themselves to
// embed the '*' sentinel.
func (r *Recorder) RecordKey(key string, prefix bool) {
	r.entries = append(r.entries, Dependency{Key: key, Prefix: prefix})
}

// Dependencies returns the deduplicated dependency list.
func (r *Recorder) Dependencies() []Dependency {
	seen := make(map[Dependency]bool, len(r.entries))
	out := make([]Dependency, 0, len(r.entries))
	for _, d := range r.entries {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// feegrantKey builds the dependent-key suffix for a fee-grant pair, using
// the opaque '*' sentinel for whichever side the caller is not filtering on
// (spec §9 open question).
func feegrantKey(granter, grantee string) string {
	g := granter
	if g == "" {
		g = feegrantEitherSentinel
	}
	e := grantee
	if e == "" {
		e = feegrantEitherSentinel
	}
	return g + "|" + e
}
