package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"chainindexer/indexer/formula"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps a formula-core error's Kind to an HTTP status per spec
// §7, falling back to 500 for any error that is not a *formula.Error (such
// as a failed store lookup). Request validation errors are written directly
// by the handlers with 400.
func writeError(w http.ResponseWriter, err error) {
	var fe *formula.Error
	if errors.As(err, &fe) {
		writeJSON(w, statusForKind(fe.Kind), errorResponse{Error: fe.Error(), Kind: fe.Kind.String()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func statusForKind(k formula.Kind) int {
	switch k {
	case formula.KindNotFound:
		return http.StatusNotFound
	case formula.KindNotApplicable:
		return http.StatusUnprocessableEntity
	case formula.KindBadInput:
		return http.StatusBadRequest
	case formula.KindFormulaFailure:
		return http.StatusBadGateway
	case formula.KindTransport:
		return http.StatusServiceUnavailable
	case formula.KindTypeMismatch:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
