// Package httpx is the shared request/response envelope: every response carries a
// request_id, every error a machine-readable code.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// Code is a machine-readable error code returned to API clients in every error envelope's
// "error.code" field. session.Kind values convert to Code directly (both are named string
// types), so session errors and httpapi's own request-validation errors share one wire shape.
type Code string

const (
	CodeBadJSON          Code = "BAD_JSON"
	CodeBadChainOrderID  Code = "BAD_CHAIN_ORDER_ID"
	CodeBadAmount        Code = "BAD_AMOUNT"
	CodeBadDueBy         Code = "BAD_DUE_BY"
	CodeOrderNotFound    Code = "ORDER_NOT_FOUND"
	CodeShipmentNotFound Code = "SHIPMENT_NOT_FOUND"
	CodeShipmentState    Code = "SHIPMENT_STATE"
	CodeChainFailed      Code = "CHAIN_FAILED"
	CodeInternal         Code = "INTERNAL"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code Code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}
