package server

import (
	"encoding/json"
	"net/http"
	"time"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/formula"
	gatewaymw "chainindexer/services/query-gateway/middleware"
)

// handleCompute implements spec §6: a single evaluation or a
// ranged/sampled one, selected by which coordinate fields the request body
// sets.
func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Address == "" || req.Formula == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "address and formula are required"})
		return
	}
	typ, err := req.formulaType()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	m, err := req.resolveMode()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	claims := gatewaymw.ClaimsFromContext(r.Context())
	onFetch := func(int) {}
	accountID := "anonymous"
	if claims != nil {
		accountID = claims.AccountID
	}
	if s.cfg.CreditAccrual != nil {
		onFetch = s.cfg.CreditAccrual.Hook(accountID)
	}

	snap := s.cfg.Tracker.Snapshot()

	switch m {
	case modePoint:
		s.handleComputePoint(w, r, req, typ, snap, onFetch)
	case modeRange:
		s.handleComputeRange(w, r, req, typ, snap, onFetch)
	}
}

func (s *Server) handleComputePoint(w http.ResponseWriter, r *http.Request, req computeRequest, typ formula.Type, snap chain.State, onFetch func(int)) {
	block, useBlockDate := chain.Block{}, true
	if req.Block != nil {
		block = chain.Block{Height: *req.Block}
	} else if req.Time != nil {
		row, err := s.cfg.Store.BlockAtOrAfterTime(r.Context(), uint64(req.Time.UnixMilli()))
		if err != nil {
			writeError(w, err)
			return
		}
		if row == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no block at or after the requested time"})
			return
		}
		block = chain.Block{Height: row.Height, TimeUnixMs: row.TimeUnixMs}
		useBlockDate = false
	}

	start := time.Now()
	res, err := formula.Compute(r.Context(), formula.Input{
		Type:                     typ,
		Name:                     req.Formula,
		ChainID:                  s.cfg.ChainID,
		TargetAddress:            req.Address,
		Args:                     req.Args,
		Block:                    block,
		UseBlockDate:             useBlockDate,
		Now:                      time.Now().UTC(),
		Store:                    s.cfg.Store,
		Registry:                 s.cfg.Registry,
		OnFetch:                  onFetch,
		CodeIDCatalogue:          s.cfg.CodeIDCatalogue,
		BankHistoryCodeIDs:       s.cfg.BankHistoryCodeIDs,
		CurrentLatestBlockHeight: snap.LatestBlock.Height,
	})
	s.observeCompute(typ, req.Formula, start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, computeResponse{Block: blockToWire(res.Block), Value: res.Value})
}

// observeCompute records the formula-evaluation metrics (spec §4's
// concurrency/operational notes); a nil Metrics config (e.g. in tests) is a
// no-op.
func (s *Server) observeCompute(typ formula.Type, name string, start time.Time, err error) {
	if s.cfg.Metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.cfg.Metrics.ComputeTotal.WithLabelValues(string(typ), name, outcome).Inc()
	s.cfg.Metrics.ComputeDuration.WithLabelValues(string(typ), name).Observe(time.Since(start).Seconds())
}

func (s *Server) onCacheOutcome() func(string) {
	if s.cfg.Metrics == nil {
		return nil
	}
	return func(outcome string) {
		s.cfg.Metrics.RangeReuseOutcomes.WithLabelValues(outcome).Inc()
		switch outcome {
		case "reused", "extended":
			s.cfg.Metrics.ComputationCacheHits.WithLabelValues("hit").Inc()
		default:
			s.cfg.Metrics.ComputationCacheHits.WithLabelValues("miss").Inc()
		}
	}
}

func (s *Server) handleComputeRange(w http.ResponseWriter, r *http.Request, req computeRequest, typ formula.Type, snap chain.State, onFetch func(int)) {
	var start, end chain.Block
	switch {
	case req.Blocks != nil:
		start = chain.Block{Height: req.Blocks[0]}
		end = chain.Block{Height: req.Blocks[1]}
	case req.Times != nil:
		startRow, err := s.cfg.Store.BlockAtOrAfterTime(r.Context(), uint64(req.Times[0].UnixMilli()))
		if err != nil {
			writeError(w, err)
			return
		}
		endRow, err := s.cfg.Store.BlockAtOrAfterTime(r.Context(), uint64(req.Times[1].UnixMilli()))
		if err != nil {
			writeError(w, err)
			return
		}
		if startRow == nil || endRow == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no block covers the requested time range"})
			return
		}
		start = chain.Block{Height: startRow.Height, TimeUnixMs: startRow.TimeUnixMs}
		end = chain.Block{Height: endRow.Height, TimeUnixMs: endRow.TimeUnixMs}
	}

	computeStart := time.Now()
	pieces, err := s.cfg.Cache.ComputeRangeCached(r.Context(), formula.RangeCacheInput{
		Type:               typ,
		Name:               req.Formula,
		ChainID:            s.cfg.ChainID,
		TargetAddress:      req.Address,
		Args:               req.Args,
		UseBlockDate:       req.Blocks != nil,
		Now:                time.Now().UTC(),
		Store:              s.cfg.Store,
		Registry:           s.cfg.Registry,
		OnFetch:            onFetch,
		OnCacheOutcome:     s.onCacheOutcome(),
		CodeIDCatalogue:    s.cfg.CodeIDCatalogue,
		BankHistoryCodeIDs: s.cfg.BankHistoryCodeIDs,
		BlockStart:         start,
		BlockEnd:           end,
	})
	s.observeCompute(typ, req.Formula, computeStart, err)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.BlockStep == 0 && req.TimeStep == 0 {
		out := make([]sampleResponse, len(pieces))
		for i, p := range pieces {
			out[i] = sampleResponse{Block: blockToWire(p.Block), Value: p.Value}
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	times := [2]uint64{start.TimeUnixMs, end.TimeUnixMs}
	if req.Times != nil {
		times = [2]uint64{uint64(req.Times[0].UnixMilli()), uint64(req.Times[1].UnixMilli())}
	}
	samples, err := formula.AssembleRange(formula.AssembleInput{
		Outputs:       pieces,
		Blocks:        [2]chain.Block{start, end},
		Times:         times,
		BlockStep:     req.BlockStep,
		TimeStep:      req.TimeStep,
		HeightForTime: s.heightForTime(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]sampleResponse, len(samples))
	for i, sm := range samples {
		out[i] = sampleResponse{Block: blockToWire(sm.Block), Value: sm.Value}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) heightForTime(r *http.Request) func(uint64) (uint64, error) {
	return func(timeUnixMs uint64) (uint64, error) {
		row, err := s.cfg.Store.BlockAtOrAfterTime(r.Context(), timeUnixMs)
		if err != nil {
			return 0, err
		}
		if row == nil {
			return 0, nil
		}
		return row.Height, nil
	}
}
