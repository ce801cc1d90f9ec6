package httpapi

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/accordsai/podx/internal/appmetrics"
	"github.com/accordsai/podx/internal/httpx"
	"github.com/accordsai/podx/internal/model"
	"github.com/accordsai/podx/internal/session"
	"github.com/go-chi/chi/v5"
)

// createSessionRequest mirrors the POST /signing-sessions body exactly. shipmentHash and
// locationHash are accepted but never trusted; the service reconstructs both server-side.
type createSessionRequest struct {
	Kind             model.SessionKind `json:"kind"`
	ShipmentID       string            `json:"shipmentId"`
	ShipmentHash     string            `json:"shipmentHash,omitempty"`
	ChainOrderID     string            `json:"chainOrderId,omitempty"`
	ClaimedTs        int64             `json:"claimedTs"`
	CurrentLat       float64           `json:"currentLat"`
	CurrentLon       float64           `json:"currentLon"`
	LocationHash     string            `json:"locationHash,omitempty"`
	CourierSignature string            `json:"courierSignature"`
	DistanceMeters   int64             `json:"distanceMeters,omitempty"`
	PickupLat        float64           `json:"pickupLat,omitempty"`
	PickupLon        float64           `json:"pickupLon,omitempty"`
	DropLat          float64           `json:"dropLat,omitempty"`
	DropLon          float64           `json:"dropLon,omitempty"`
	RadiusM          float64           `json:"radiusM,omitempty"`
	Notes            string            `json:"notes,omitempty"`
}

func createSessionHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
			return
		}
		sig, err := decodeHexBytes(req.CourierSignature)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, "courierSignature must be 0x-prefixed hex", nil)
			return
		}

		// pickupLat/pickupLon/dropLat/dropLon are accepted for parity with the request shape but
		// never trusted: the shipment record already fixes both endpoints.
		created, err := d.Sessions.CreateSession(r.Context(), session.CreateInput{
			Kind:             req.Kind,
			ShipmentID:       req.ShipmentID,
			ClaimedTs:        req.ClaimedTs,
			CurrentLat:       req.CurrentLat,
			CurrentLon:       req.CurrentLon,
			CourierSignature: sig,
			DistanceMeters:   req.DistanceMeters,
			RadiusM:          req.RadiusM,
			Notes:            req.Notes,
		})
		if err != nil {
			writeSessionError(w, req.Kind, err)
			return
		}

		appmetrics.SessionsCreatedTotal.WithLabelValues(string(req.Kind)).Inc()
		role := model.RoleSupplier
		if req.Kind == model.SessionDrop {
			role = model.RoleBuyer
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"request_id": httpx.NewRequestID(),
			"sessionId":  created.Session.SessionUID,
			"link":       "/signing-sessions/" + created.Session.SessionUID + "?t=" + created.Token,
			"role":       role,
			"kind":       created.Session.Kind,
			"deadline":   created.Session.Deadline,
		})
	}
}

func resolveSessionHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")
		token := r.URL.Query().Get("t")

		resolved, err := d.Sessions.ResolveSession(r.Context(), sessionID, token)
		if err != nil {
			writeSessionError(w, "", err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"session": map[string]any{
				"sessionId":  resolved.Session.SessionUID,
				"shipmentId": resolved.Session.ShipmentID,
				"kind":       resolved.Session.Kind,
				"status":     resolved.Session.Status,
				"deadline":   resolved.Session.Deadline,
			},
			"typedData": map[string]any{
				"domain": map[string]any{
					"name":              "PODxShipment",
					"version":           "1",
					"chainId":           resolved.Domain.ChainID,
					"verifyingContract": resolved.Domain.VerifyingContract,
				},
				"message": resolved.Message,
			},
		})
	}
}

type completeSessionRequest struct {
	Signature string `json:"signature"`
}

func completeSessionHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")
		token := r.URL.Query().Get("t")

		var req completeSessionRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
			return
		}
		sig, err := decodeHexBytes(req.Signature)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, "signature must be 0x-prefixed hex", nil)
			return
		}

		result, err := d.Sessions.CompleteSession(r.Context(), sessionID, token, sig)
		if err != nil {
			writeSessionError(w, "", err)
			return
		}

		kind := "pickup"
		if result.DropTx != "" {
			kind = "drop"
		}
		appmetrics.SessionsCompletedTotal.WithLabelValues(kind).Inc()
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id":       httpx.NewRequestID(),
			"ok":               true,
			"pickupTx":         emptyToNil(result.PickupTx),
			"dropTx":           emptyToNil(result.DropTx),
			"courierRewardWei": emptyToNil(result.CourierRewardWei),
		})
	}
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// writeSessionError renders a session.Error using its Kind-to-status mapping, exposing
// expectedSigner and recovered only for BAD_SIGNATURE.
func writeSessionError(w http.ResponseWriter, kind model.SessionKind, err error) {
	var sessErr *session.Error
	if errors.As(err, &sessErr) {
		switch sessErr.Kind {
		case session.KindRadiusExceeded:
			appmetrics.RadiusExceededTotal.WithLabelValues(string(kind)).Inc()
		case session.KindBadSignature:
			appmetrics.BadSignatureTotal.WithLabelValues(string(kind)).Inc()
		case session.KindSessionConflict:
			appmetrics.SessionConflictsTotal.Inc()
		}
		var details any
		if sessErr.Kind == session.KindBadSignature {
			details = map[string]any{
				"expectedSigner": sessErr.ExpectedSigner,
				"recovered":      sessErr.Recovered,
			}
		}
		httpx.WriteError(w, session.HTTPStatus(sessErr.Kind), httpx.Code(sessErr.Kind), sessErr.Message, details)
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
}

func decodeHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
