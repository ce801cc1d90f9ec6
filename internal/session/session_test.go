package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/accordsai/podx/internal/eip712"
	"github.com/accordsai/podx/internal/model"
	"github.com/accordsai/podx/internal/settlement"
	"github.com/accordsai/podx/internal/store"
)

// fakeStore holds exactly one shipment/order/session/link, enough to drive createSession
// through completeSession without a database.
type fakeStore struct {
	shipment model.Shipment
	order    model.Order
	sess     model.SigningSession
	link     model.MagicLink
}

func (f *fakeStore) GetShipment(ctx context.Context, id string) (model.Shipment, error) {
	if id != f.shipment.ID {
		return model.Shipment{}, store.ErrNotFound
	}
	return f.shipment, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	if id != f.order.ID {
		return model.Order{}, store.ErrNotFound
	}
	return f.order, nil
}

func (f *fakeStore) CreateSessionWithMagicLink(ctx context.Context, sess model.SigningSession, link model.MagicLink) error {
	f.sess = sess
	f.link = link
	return nil
}

func (f *fakeStore) GetSessionByUID(ctx context.Context, sessionUID string) (model.SigningSession, error) {
	if sessionUID != f.sess.SessionUID {
		return model.SigningSession{}, store.ErrNotFound
	}
	return f.sess, nil
}

func (f *fakeStore) GetMagicLinkByTokenHash(ctx context.Context, tokenHash string) (model.MagicLink, error) {
	if tokenHash != f.link.TokenHash {
		return model.MagicLink{}, store.ErrNotFound
	}
	return f.link, nil
}

func (f *fakeStore) ExpireStaleSessions(ctx context.Context) (map[model.SessionKind]int64, error) {
	return nil, nil
}

// markSettled simulates the DB side effect a real settlement.Store commit would have made:
// the session transitions to COMPLETED and its magic link is marked used.
func (f *fakeStore) markSettled() {
	f.sess.Status = model.SessionCompleted
	usedAt := time.Now().UTC()
	f.link.UsedAt = &usedAt
}

// fakeVerifier accepts every signature; sigverify_test.go already covers EOA/contract-wallet
// recovery, so these tests only need to exercise session-level flow control.
type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, expectedSigner string, digest [32]byte, sig []byte) (bool, error) {
	return true, nil
}

// fakeSettler counts invocations and can be told to fail, simulating a chain gateway that
// times out mid-settlement.
type fakeSettler struct {
	calls        int
	settleErr    error
	settleResult settlement.Result
}

func (f *fakeSettler) Settle(ctx context.Context, sess model.SigningSession, approval eip712.Approval, counterpartySig []byte) (settlement.Result, error) {
	f.calls++
	if f.settleErr != nil {
		return settlement.Result{}, f.settleErr
	}
	return f.settleResult, nil
}

func newPickupFixture() (*fakeStore, *fakeSettler, *Service) {
	fs := &fakeStore{
		shipment: model.Shipment{
			ID:              "ship_1",
			OrderID:         "order_1",
			Supplier:        "0x111111111111111111111111111111111111111a",
			Buyer:           "0x111111111111111111111111111111111111111b",
			AssignedCourier: "0x111111111111111111111111111111111111111c",
			PickupLat:       37.7749,
			PickupLon:       -122.4194,
			DropLat:         37.80,
			DropLon:         -122.42,
			Status:          model.ShipmentCreated,
		},
		order: model.Order{ID: "order_1", ChainOrderID: "42"},
	}
	settler := &fakeSettler{settleResult: settlement.Result{PickupTx: "0xtx1"}}
	domain := eip712.Domain{ChainID: 1337, VerifyingContract: "0x111111111111111111111111111111111111111d"}
	svc := New(fs, fakeVerifier{}, settler, domain, []byte("a-32-byte-test-hmac-secret-value"), 10*time.Minute, 2000)
	return fs, settler, svc
}

func createPickupSession(t *testing.T, svc *Service) Created {
	t.Helper()
	created, err := svc.CreateSession(context.Background(), CreateInput{
		Kind:             model.SessionPickup,
		ShipmentID:       "ship_1",
		ClaimedTs:        1700000000,
		CurrentLat:       37.7749,
		CurrentLon:       -122.4194,
		CourierSignature: []byte{0x01, 0x02, 0x03},
	})
	if err != nil {
		t.Fatalf("createSession: %v", err)
	}
	return created
}

// TestCompleteSession_ReplayReturnsLinkUsed covers replaying a completed session: the second
// completeSession call must fail closed with LINK_USED and must never reach the settler again.
func TestCompleteSession_ReplayReturnsLinkUsed(t *testing.T) {
	fs, settler, svc := newPickupFixture()
	created := createPickupSession(t, svc)

	ctx := context.Background()
	if _, err := svc.CompleteSession(ctx, created.Session.SessionUID, created.Token, []byte{0x0a}); err != nil {
		t.Fatalf("first completeSession: %v", err)
	}
	if settler.calls != 1 {
		t.Fatalf("expected exactly 1 settle call after the first completion, got %d", settler.calls)
	}
	fs.markSettled()

	_, err := svc.CompleteSession(ctx, created.Session.SessionUID, created.Token, []byte{0x0a})
	var sessErr *Error
	if !errors.As(err, &sessErr) || sessErr.Kind != KindLinkUsed {
		t.Fatalf("expected KindLinkUsed on replay, got %v", err)
	}
	if settler.calls != 1 {
		t.Fatalf("expected the chain to be untouched by the replay, got %d settle calls", settler.calls)
	}
}

// TestCompleteSession_ChainFailureThenRetry covers a chain failure mid-settlement: the session
// must stay in its pending status after the failed attempt, and a retry once the chain recovers
// must succeed.
func TestCompleteSession_ChainFailureThenRetry(t *testing.T) {
	fs, settler, svc := newPickupFixture()
	created := createPickupSession(t, svc)

	ctx := context.Background()
	settler.settleErr = errors.New("chain: rpc timeout")

	_, err := svc.CompleteSession(ctx, created.Session.SessionUID, created.Token, []byte{0x0a})
	var sessErr *Error
	if !errors.As(err, &sessErr) || sessErr.Kind != KindChainFailed {
		t.Fatalf("expected KindChainFailed, got %v", err)
	}
	if fs.sess.Status != model.SessionPendingSupplier {
		t.Fatalf("expected session to remain PENDING_SUPPLIER after a chain failure, got %s", fs.sess.Status)
	}

	settler.settleErr = nil
	result, err := svc.CompleteSession(ctx, created.Session.SessionUID, created.Token, []byte{0x0a})
	if err != nil {
		t.Fatalf("expected retry to succeed once the chain recovers: %v", err)
	}
	if result.PickupTx != "0xtx1" {
		t.Fatalf("expected the retry's settlement result, got %+v", result)
	}
	if settler.calls != 2 {
		t.Fatalf("expected 2 settle calls (failed attempt + successful retry), got %d", settler.calls)
	}
}
