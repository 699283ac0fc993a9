package formula

import (
	"testing"

	"chainindexer/indexer/chain"
)

func TestStepRangeShortensFinalStride(t *testing.T) {
	got := stepRange(100, 123, 10)
	want := []uint64{100, 110, 120, 123}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestAssembleRangeBlockStepSamplesPieces(t *testing.T) {
	outputs := []*Result{
		{Block: chain.Block{Height: 100}, Value: "a", LatestBlockHeightValid: 109},
		{Block: chain.Block{Height: 110}, Value: "b", LatestBlockHeightValid: 200},
	}
	samples, err := AssembleRange(AssembleInput{
		Outputs:   outputs,
		Blocks:    [2]chain.Block{{Height: 100}, {Height: 130}},
		BlockStep: 15,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[uint64]string{100: "a", 115: "b", 130: "b"}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d: %+v", len(samples), len(want), samples)
	}
	for _, s := range samples {
		if want[s.Block.Height] != s.Value {
			t.Fatalf("height %d: got %v, want %v", s.Block.Height, s.Value, want[s.Block.Height])
		}
	}
}

func TestAssembleRangeNoStepReturnsRawSeries(t *testing.T) {
	outputs := []*Result{
		{Block: chain.Block{Height: 100}, Value: "a"},
		{Block: chain.Block{Height: 110}, Value: "b"},
	}
	samples, err := AssembleRange(AssembleInput{Outputs: outputs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 || samples[0].Value != "a" || samples[1].Value != "b" {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestAssembleRangeTimeStepRequiresHeightForTime(t *testing.T) {
	outputs := []*Result{{Block: chain.Block{Height: 100}, Value: "a", LatestBlockHeightValid: 200}}
	_, err := AssembleRange(AssembleInput{
		Outputs:  outputs,
		Times:    [2]uint64{1000, 2000},
		TimeStep: 500,
	})
	if err == nil {
		t.Fatalf("expected error when HeightForTime is nil")
	}
}
