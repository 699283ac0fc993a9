package formula

import "chainindexer/indexer/chain"

// Sample is one entry of an assembled series: the coordinate it was sampled
// at plus the piece's value at that coordinate.
type Sample struct {
	Block chain.Block
	Value any
}

// AssembleInput configures the Range Assembler (C8, spec §4.8).
type AssembleInput struct {
	Outputs []*Result

	// Blocks, when BlockStep > 0, is the [start, end] height range to
	// sample.
	Blocks [2]chain.Block
	// Times, when TimeStep > 0, is the [start, end] unix-ms range to
	// sample.
	Times [2]uint64

	BlockStep uint64
	TimeStep  uint64

	// HeightForTime resolves a wall-clock time to the block height active
	// at that time (spec §6: "Block ... with helpers to fetch the block at
	// or after a given time"). Required only when TimeStep > 0.
	HeightForTime func(timeUnixMs uint64) (uint64, error)
}

// AssembleRange projects a piecewise series onto a caller-supplied sampling
// grid, or returns the raw series unchanged when neither step is set (C8,
// spec §4.8). Sampling is left-closed, right-closed.
func AssembleRange(in AssembleInput) ([]Sample, error) {
	if len(in.Outputs) == 0 {
		return nil, nil
	}

	if in.BlockStep > 0 {
		heights := stepRange(in.Blocks[0].Height, in.Blocks[1].Height, in.BlockStep)
		out := make([]Sample, 0, len(heights))
		for _, h := range heights {
			piece := pieceContainingHeight(in.Outputs, h)
			out = append(out, Sample{Block: chain.Block{Height: h}, Value: piece.Value})
		}
		return out, nil
	}

	if in.TimeStep > 0 {
		if in.HeightForTime == nil {
			return nil, errBadInput("timeStep sampling requires HeightForTime")
		}
		times := stepRange(in.Times[0], in.Times[1], in.TimeStep)
		out := make([]Sample, 0, len(times))
		for _, t := range times {
			h, err := in.HeightForTime(t)
			if err != nil {
				return nil, errTransport(err, "HeightForTime(%d)", t)
			}
			piece := pieceContainingHeight(in.Outputs, h)
			out = append(out, Sample{Block: chain.Block{Height: h, TimeUnixMs: t}, Value: piece.Value})
		}
		return out, nil
	}

	out := make([]Sample, 0, len(in.Outputs))
	for _, piece := range in.Outputs {
		out = append(out, Sample{Block: piece.Block, Value: piece.Value})
	}
	return out, nil
}

// stepRange returns start, start+step, ..., ending exactly at end (the
// final stride is shortened rather than overshot), giving exactly
// ceil((end-start)/step)+1 samples as spec §4.8/P5 requires.
func stepRange(start, end, step uint64) []uint64 {
	if step == 0 || end < start {
		return []uint64{start}
	}
	var out []uint64
	for h := start; h < end; h += step {
		out = append(out, h)
	}
	out = append(out, end)
	return out
}

// pieceContainingHeight finds the piece whose [Block.Height,
// LatestBlockHeightValid] interval contains h. Outputs is assumed ordered
// ascending by Block.Height, as every producer in this package (Compute,
// ComputeRange, Cache) guarantees.
func pieceContainingHeight(outputs []*Result, h uint64) *Result {
	for _, piece := range outputs {
		if h >= piece.Block.Height && h <= piece.LatestBlockHeightValid {
			return piece
		}
	}
	// h preceded the first piece's block (can happen when sampling starts
	// earlier than the first recomputation) or followed the last piece's
	// validity: clamp to the nearest boundary piece.
	if h < outputs[0].Block.Height {
		return outputs[0]
	}
	return outputs[len(outputs)-1]
}
