// Package session implements the signing-session operations: createSession, resolveSession,
// completeSession, and the background expire() sweep. It wires together the crypto, geo,
// attestation, signature-verification, magic-link, and settlement pieces into a
// single-writer-per-sessionUid flow.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/accordsai/podx/internal/cryptox"
	"github.com/accordsai/podx/internal/eip712"
	"github.com/accordsai/podx/internal/geo"
	"github.com/accordsai/podx/internal/magiclink"
	"github.com/accordsai/podx/internal/model"
	"github.com/accordsai/podx/internal/settlement"
	"github.com/accordsai/podx/internal/store"
	"github.com/accordsai/podx/internal/wire"
)

// Store is the subset of *store.Store the session service needs. Satisfied by *store.Store;
// narrowed to an interface so tests can substitute a fake.
type Store interface {
	GetShipment(ctx context.Context, id string) (model.Shipment, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	CreateSessionWithMagicLink(ctx context.Context, sess model.SigningSession, link model.MagicLink) error
	GetSessionByUID(ctx context.Context, sessionUID string) (model.SigningSession, error)
	GetMagicLinkByTokenHash(ctx context.Context, tokenHash string) (model.MagicLink, error)
	ExpireStaleSessions(ctx context.Context) (map[model.SessionKind]int64, error)
}

// Verifier is the subset of *sigverify.Verifier the session service needs. Satisfied by
// *sigverify.Verifier; narrowed to an interface so tests can substitute a fake.
type Verifier interface {
	Verify(ctx context.Context, expectedSigner string, digest [32]byte, sig []byte) (bool, error)
}

// Settler is the subset of *settlement.Coordinator the session service needs. Satisfied by
// *settlement.Coordinator; narrowed to an interface so tests can substitute a fake.
type Settler interface {
	Settle(ctx context.Context, sess model.SigningSession, approval eip712.Approval, counterpartySig []byte) (settlement.Result, error)
}

// Service runs the signing-session operations. The HMAC secret, session TTL, and default
// radius come from config at construction; see cmd/podxd/main.go.
type Service struct {
	store    Store
	verifier Verifier
	settler  Settler
	domain   eip712.Domain
	secret   []byte
	ttl      time.Duration
	radius   float64
}

// New wires a Service from its already-constructed dependencies.
func New(st Store, verifier Verifier, settler Settler, domain eip712.Domain, secret []byte, ttl time.Duration, defaultRadius float64) *Service {
	return &Service{store: st, verifier: verifier, settler: settler, domain: domain, secret: secret, ttl: ttl, radius: defaultRadius}
}

// CreateInput is the caller-supplied portion of createSession's input; everything else
// (shipmentHash, orderId, locationHash) is reconstructed server-side: the typed data is
// derived deterministically and never read from the caller.
type CreateInput struct {
	Kind             model.SessionKind
	ShipmentID       string
	ClaimedTs        int64
	CurrentLat       float64
	CurrentLon       float64
	CourierSignature []byte
	DistanceMeters   int64 // required for kind=drop, ignored for kind=pickup
	RadiusM          float64
	Notes            string
}

// Created is what CreateSession returns to the HTTP layer.
type Created struct {
	Session model.SigningSession
	Token   string
}

// CreateSession implements the createSession operation. The caller is identified
// implicitly: the shipment's assignedCourier is the only signer the courierSignature is ever
// checked against, so there is no separate "who is calling" field to trust or spoof.
func (s *Service) CreateSession(ctx context.Context, in CreateInput) (Created, error) {
	if in.ClaimedTs == 0 {
		return Created{}, &Error{Kind: KindBadSignature, Message: "claimedTs must be non-zero"}
	}

	sh, err := s.store.GetShipment(ctx, in.ShipmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Created{}, &Error{Kind: KindShipmentState, Message: "shipment not found"}
		}
		return Created{}, err
	}
	if sh.AssignedCourier == "" {
		return Created{}, &Error{Kind: KindShipmentState, Message: "shipment has no assigned courier"}
	}
	courier := sh.AssignedCourier

	var targetLat, targetLon float64
	var counterparty string
	var expectedRole model.MagicLinkRole
	switch in.Kind {
	case model.SessionPickup:
		if sh.Status != model.ShipmentCreated {
			return Created{}, &Error{Kind: KindShipmentState, Message: "shipment is not in Created state"}
		}
		targetLat, targetLon = sh.PickupLat, sh.PickupLon
		counterparty = sh.Supplier
		expectedRole = model.RoleSupplier
	case model.SessionDrop:
		if sh.Status != model.ShipmentInTransit && sh.Status != model.ShipmentDelivered {
			return Created{}, &Error{Kind: KindShipmentState, Message: "shipment is not in transit"}
		}
		targetLat, targetLon = sh.DropLat, sh.DropLon
		counterparty = sh.Buyer
		expectedRole = model.RoleBuyer
	default:
		return Created{}, &Error{Kind: KindShipmentState, Message: "unrecognised session kind"}
	}

	radius := s.radius
	if in.RadiusM > 0 {
		radius = in.RadiusM
	}
	distanceToTarget := geo.DistanceMeters(in.CurrentLat, in.CurrentLon, targetLat, targetLon)
	if !geo.WithinRadius(distanceToTarget, radius) {
		return Created{}, &Error{Kind: KindRadiusExceeded, Message: "courier is outside the geofence"}
	}

	if in.Kind == model.SessionDrop {
		planned := geo.RoundMeters(geo.DistanceMeters(sh.PickupLat, sh.PickupLon, sh.DropLat, sh.DropLon))
		delta := in.DistanceMeters - planned
		if delta < 0 {
			delta = -delta
		}
		if delta > 5 {
			return Created{}, &Error{Kind: KindBadDistance, Message: fmt.Sprintf("distance %d deviates from planned %d by more than 5m", in.DistanceMeters, planned)}
		}
	}

	ord, err := s.store.GetOrder(ctx, sh.OrderID)
	if err != nil {
		return Created{}, err
	}
	orderIDBig, err := wire.ParseUint256(ord.ChainOrderID)
	if err != nil {
		return Created{}, fmt.Errorf("session: stored chainOrderId %q is invalid: %w", ord.ChainOrderID, err)
	}

	approval := eip712.Approval{
		ShipmentHash:   cryptox.Keccak256UTF8(sh.ID),
		OrderID:        orderIDBig,
		LocationHash:   eip712.LocationHash(in.CurrentLat, in.CurrentLon, in.ClaimedTs),
		ClaimedTs:      in.ClaimedTs,
		DistanceMeters: in.DistanceMeters,
	}
	digest := eip712.Digest(s.domain.SeparatorHash(), approval.StructHash(string(in.Kind)))

	valid, err := s.verifier.Verify(ctx, courier, digest, in.CourierSignature)
	if err != nil {
		return Created{}, err
	}
	if !valid {
		recovered := ""
		if addr, rerr := cryptox.RecoverAddress(digest, in.CourierSignature); rerr == nil {
			recovered = addr.Hex()
		}
		return Created{}, &Error{Kind: KindBadSignature, Message: "courier signature does not verify", ExpectedSigner: courier, Recovered: recovered}
	}

	sessionUID, err := randomHex(16)
	if err != nil {
		return Created{}, err
	}
	courierNonce, err := randomHex(16)
	if err != nil {
		return Created{}, err
	}
	supplierNonce, err := randomHex(16)
	if err != nil {
		return Created{}, err
	}
	jti, err := randomHex(12)
	if err != nil {
		return Created{}, err
	}

	now := time.Now().UTC()
	deadline := now.Add(s.ttl)
	status := model.SessionPendingSupplier
	if in.Kind == model.SessionDrop {
		status = model.SessionPendingBuyer
	}

	contextHash := hex.EncodeToString(cryptox.Keccak256(digest[:]))

	sess := model.SigningSession{
		SessionUID:       sessionUID,
		ShipmentID:       sh.ID,
		Kind:             in.Kind,
		Courier:          courier,
		Supplier:         counterparty,
		ChainOrderID:     ord.ChainOrderID,
		Deadline:         deadline,
		Status:           status,
		CourierNonce:     courierNonce,
		SupplierNonce:    supplierNonce,
		ContextHash:      contextHash,
		CourierSignature: in.CourierSignature,
		Payload: model.SessionPayload{
			ShipmentHash:   "0x" + hex.EncodeToString(approval.ShipmentHash[:]),
			OrderID:        orderIDBig.String(),
			LocationHash:   "0x" + hex.EncodeToString(approval.LocationHash[:]),
			ClaimedTs:      in.ClaimedTs,
			DistanceMeters: in.DistanceMeters,
			CurrentLat:     in.CurrentLat,
			CurrentLon:     in.CurrentLon,
			RadiusM:        radius,
			Notes:          in.Notes,
		},
	}

	link := model.MagicLink{
		Role:      expectedRole,
		JTI:       jti,
		ExpiresAt: deadline,
		SessionID: sessionUID,
	}
	token, tokenHash, err := magiclink.Mint(s.secret, magiclink.Payload{
		SID:  sessionUID,
		Role: string(expectedRole),
		JTI:  jti,
		Exp:  deadline.Unix(),
	})
	if err != nil {
		return Created{}, err
	}
	link.TokenHash = tokenHash

	if err := s.store.CreateSessionWithMagicLink(ctx, sess, link); err != nil {
		if errors.Is(err, store.ErrSessionConflict) {
			return Created{}, &Error{Kind: KindSessionConflict, Message: "a non-terminal session already exists for this shipment and kind"}
		}
		return Created{}, err
	}

	return Created{Session: sess, Token: token}, nil
}

// Resolved is what ResolveSession returns to the HTTP layer: the session plus the reconstructed
// typed data for the counterparty to sign.
type Resolved struct {
	Session   model.SigningSession
	Domain    eip712.Domain
	Message   eip712.Message
	Digest    [32]byte
}

// ResolveSession implements the resolveSession operation.
func (s *Service) ResolveSession(ctx context.Context, sessionUID, token string) (Resolved, error) {
	if token == "" {
		return Resolved{}, &Error{Kind: KindTokenMissing, Message: "token is required"}
	}
	payload, verr := magiclink.Verify(s.secret, token, time.Now().UTC())
	if verr != nil {
		switch {
		case errors.Is(verr, magiclink.ErrExpired):
			return Resolved{}, &Error{Kind: KindLinkExpired, Message: "token expired"}
		default:
			return Resolved{}, &Error{Kind: KindTokenInvalid, Message: "token invalid"}
		}
	}
	if payload.SID != sessionUID {
		return Resolved{}, &Error{Kind: KindTokenInvalid, Message: "token does not match session"}
	}

	sess, err := s.store.GetSessionByUID(ctx, sessionUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Resolved{}, &Error{Kind: KindSessionGone, Message: "session not found"}
		}
		return Resolved{}, err
	}

	expectedRole := model.RoleSupplier
	expectedStatus := model.SessionPendingSupplier
	if sess.Kind == model.SessionDrop {
		expectedRole = model.RoleBuyer
		expectedStatus = model.SessionPendingBuyer
	}
	if payload.Role != string(expectedRole) {
		return Resolved{}, &Error{Kind: KindRoleMismatch, Message: "token role does not match session"}
	}
	if time.Now().UTC().After(sess.Deadline) {
		return Resolved{}, &Error{Kind: KindLinkExpired, Message: "session deadline passed"}
	}
	if sess.Status != expectedStatus {
		if sess.Status == model.SessionCompleted {
			return Resolved{}, &Error{Kind: KindLinkUsed, Message: "session already completed"}
		}
		return Resolved{}, &Error{Kind: KindSessionGone, Message: "session is not awaiting this counterparty"}
	}

	link, err := s.store.GetMagicLinkByTokenHash(ctx, magiclink.HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Resolved{}, &Error{Kind: KindSessionGone, Message: "link not found"}
		}
		return Resolved{}, err
	}
	if link.UsedAt != nil {
		return Resolved{}, &Error{Kind: KindLinkUsed, Message: "link already used"}
	}

	approval, err := approvalFromPayload(sess)
	if err != nil {
		return Resolved{}, err
	}
	digest := eip712.Digest(s.domain.SeparatorHash(), approval.StructHash(string(sess.Kind)))

	return Resolved{
		Session: sess,
		Domain:  s.domain,
		Message: approval.ToWireMessage(),
		Digest:  digest,
	}, nil
}

// CompleteSession implements the completeSession operation: re-runs resolveSession's
// checks, verifies the counterparty signature, and invokes the settlement coordinator.
func (s *Service) CompleteSession(ctx context.Context, sessionUID, token string, counterpartySignature []byte) (settlement.Result, error) {
	resolved, err := s.ResolveSession(ctx, sessionUID, token)
	if err != nil {
		return settlement.Result{}, err
	}
	sess := resolved.Session

	valid, err := s.verifier.Verify(ctx, sess.Supplier, resolved.Digest, counterpartySignature)
	if err != nil {
		return settlement.Result{}, err
	}
	if !valid {
		recovered := ""
		if addr, rerr := cryptox.RecoverAddress(resolved.Digest, counterpartySignature); rerr == nil {
			recovered = addr.Hex()
		}
		return settlement.Result{}, &Error{Kind: KindBadSignature, Message: "counterparty signature does not verify", ExpectedSigner: sess.Supplier, Recovered: recovered}
	}
	sess.CounterpartySignature = counterpartySignature

	approval, err := approvalFromPayload(sess)
	if err != nil {
		return settlement.Result{}, err
	}

	result, err := s.settler.Settle(ctx, sess, approval, counterpartySignature)
	if err != nil {
		var stateErr *settlement.StateError
		if errors.As(err, &stateErr) {
			kind := KindShipmentState
			if sess.Kind == model.SessionDrop && strings.Contains(stateErr.Message, "distance") {
				kind = KindBadDistance
			}
			return settlement.Result{}, &Error{Kind: kind, Message: stateErr.Message}
		}
		return settlement.Result{}, &Error{Kind: KindChainFailed, Message: err.Error()}
	}
	return result, nil
}

// approvalFromPayload reconstructs the eip712.Approval from a session's stored payload, never
// trusting a fresh caller-supplied value, matching resolveSession's own reconstruction.
func approvalFromPayload(sess model.SigningSession) (eip712.Approval, error) {
	return eip712.FromWireMessage(eip712.Message{
		ShipmentHash:   sess.Payload.ShipmentHash,
		OrderID:        sess.Payload.OrderID,
		LocationHash:   sess.Payload.LocationHash,
		ClaimedTs:      sess.Payload.ClaimedTs,
		DistanceMeters: sess.Payload.DistanceMeters,
	})
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ExpireStale runs the expire() sweep once and returns the number of sessions
// transitioned to EXPIRED, by kind.
func (s *Service) ExpireStale(ctx context.Context) (map[model.SessionKind]int64, error) {
	return s.store.ExpireStaleSessions(ctx)
}
