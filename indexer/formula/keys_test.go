package formula

import "testing"

func TestDependentKeyRoundTrip(t *testing.T) {
	cases := []struct {
		namespace, subject, suffix string
	}{
		{"wasmState", "contract1", "items/a"},
		{"bankBalance", "addr1", ""},
	}
	for _, c := range cases {
		key := DependentKey(c.namespace, c.subject, c.suffix)
		ns, subj, suf := SplitDependentKey(key)
		if ns != c.namespace || subj != c.subject || suf != c.suffix {
			t.Fatalf("round trip mismatch for %+v: got (%q,%q,%q)", c, ns, subj, suf)
		}
	}
}

func TestRecorderDependenciesDedup(t *testing.T) {
	r := NewRecorder()
	r.Record(NamespaceWasmState, "c1", "items/a", false)
	r.Record(NamespaceWasmState, "c1", "items/a", false)
	r.Record(NamespaceWasmState, "c1", "items/b", true)

	deps := r.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("expected 2 deduped dependencies, got %d: %+v", len(deps), deps)
	}
}

func TestRecorderRecordKeyPreservesPrefixFlag(t *testing.T) {
	r := NewRecorder()
	r.RecordKey("feegrant:granter1:grantee1", false)
	deps := r.Dependencies()
	if len(deps) != 1 || deps[0].Prefix {
		t.Fatalf("expected one exact dependency, got %+v", deps)
	}
}
