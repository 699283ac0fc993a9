package server

import (
	"fmt"
	"time"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/formula"
)

// computeRequest is the JSON body of POST /v1/compute, implementing the
// input shape of spec §6: a single evaluation point (block or time) or a
// range (blocks/times, optionally stepped).
type computeRequest struct {
	Type    string            `json:"type"`
	Address string            `json:"address"`
	Formula string            `json:"formula"`
	Args    map[string]string `json:"args"`

	Block *uint64    `json:"block,omitempty"`
	Time  *time.Time `json:"time,omitempty"`

	Blocks *[2]uint64    `json:"blocks,omitempty"`
	Times  *[2]time.Time `json:"times,omitempty"`

	BlockStep uint64 `json:"blockStep,omitempty"`
	TimeStep  uint64 `json:"timeStep,omitempty"`
}

// mode classifies which of the mutually exclusive coordinate forms a
// request used.
type mode int

const (
	modePoint mode = iota
	modeRange
)

func (req *computeRequest) resolveMode() (mode, error) {
	set := 0
	if req.Block != nil {
		set++
	}
	if req.Time != nil {
		set++
	}
	if req.Blocks != nil {
		set++
	}
	if req.Times != nil {
		set++
	}
	switch {
	case set == 0:
		return 0, fmt.Errorf("exactly one of block, time, blocks, times is required")
	case set > 1:
		return 0, fmt.Errorf("exactly one of block, time, blocks, times may be set")
	}
	if req.Block != nil || req.Time != nil {
		return modePoint, nil
	}
	return modeRange, nil
}

func (req *computeRequest) formulaType() (formula.Type, error) {
	switch req.Type {
	case string(formula.TypeContract):
		return formula.TypeContract, nil
	case string(formula.TypeValidator):
		return formula.TypeValidator, nil
	case string(formula.TypeAccount):
		return formula.TypeAccount, nil
	case string(formula.TypeGeneric):
		return formula.TypeGeneric, nil
	default:
		return "", fmt.Errorf("unknown type %q", req.Type)
	}
}

// computeResponse is the JSON body returned from a point evaluation.
type computeResponse struct {
	Block Uint64Time `json:"block"`
	Value any        `json:"value"`
}

// sampleResponse is one entry of a ranged/sampled evaluation.
type sampleResponse struct {
	Block Uint64Time `json:"block"`
	Value any        `json:"value"`
}

// Uint64Time pairs a block height with its wall-clock time, the shape
// callers need from every sampled or point result (spec §6).
type Uint64Time struct {
	Height     uint64 `json:"height"`
	TimeUnixMs uint64 `json:"timeUnixMs"`
}

func blockToWire(b chain.Block) Uint64Time {
	return Uint64Time{Height: b.Height, TimeUnixMs: b.TimeUnixMs}
}
