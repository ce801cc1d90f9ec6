package httpapi

import (
	"net/http"
	"time"

	"github.com/accordsai/podx/internal/cryptox"
	"github.com/accordsai/podx/internal/httpx"
	"github.com/accordsai/podx/internal/model"
	"github.com/accordsai/podx/internal/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// This file wires the administrative CRUD surface: orders, shipments, and the escrow-funding
// step. It is a thin layer over internal/store, invoking internal/chain wherever the operation
// has an on-chain counterpart (registering a shipment, moving a courier, funding escrow); the
// chain call always happens before the row is persisted, matching internal/settlement's
// "chain first, then commit" ordering.

type createOrderRequest struct {
	Buyer           string           `json:"buyer"`
	Supplier        string           `json:"supplier"`
	TotalAmount     string           `json:"totalAmount"`
	Currency        string           `json:"currency"`
	ChainOrderID    string           `json:"chainOrderId"`
	Items           []model.LineItem `json:"items,omitempty"`
	DropMetadataURI string           `json:"dropMetadataUri,omitempty"`
}

func createOrderHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
			return
		}
		chainOrderID, err := wire.ParseChainOrderID(req.ChainOrderID)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadChainOrderID, err.Error(), nil)
			return
		}
		amount, err := decimal.NewFromString(req.TotalAmount)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadAmount, "totalAmount must be a decimal string", nil)
			return
		}

		order := model.Order{
			ID:           "ord_" + uuid.NewString(),
			Buyer:        req.Buyer,
			Supplier:     req.Supplier,
			TotalAmount:  amount,
			Currency:     req.Currency,
			ChainOrderID: chainOrderID,
			Status:       model.OrderApproved,
			Metadata: model.Metadata{
				Items:           req.Items,
				ChainOrderID:    chainOrderID,
				DropMetadataURI: req.DropMetadataURI,
			},
		}
		if err := d.Store.CreateOrder(r.Context(), order); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}

		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"request_id": httpx.NewRequestID(),
			"orderId":    order.ID,
			"status":     order.Status,
		})
	}
}

type updateOrderStatusRequest struct {
	Status       model.OrderStatus `json:"status"`
	MetadataPatch map[string]any   `json:"metadataPatch,omitempty"`
}

func updateOrderStatusHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderId")
		var req updateOrderStatusRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
			return
		}
		if err := d.Store.UpdateOrderStatus(r.Context(), orderID, req.Status, req.MetadataPatch); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"ok":         true,
		})
	}
}

type createShipmentRequest struct {
	OrderID         string  `json:"orderId"`
	Supplier        string  `json:"supplier"`
	Buyer           string  `json:"buyer"`
	AssignedCourier string  `json:"assignedCourier,omitempty"`
	PickupLat       float64 `json:"pickupLat"`
	PickupLon       float64 `json:"pickupLon"`
	DropLat         float64 `json:"dropLat"`
	DropLon         float64 `json:"dropLon"`
	DueBy           string  `json:"dueBy"`
}

func createShipmentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createShipmentRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
			return
		}
		dueBy, err := time.Parse(time.RFC3339, req.DueBy)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadDueBy, "dueBy must be RFC3339", nil)
			return
		}

		ord, err := d.Store.GetOrder(r.Context(), req.OrderID)
		if err != nil {
			httpx.WriteError(w, http.StatusNotFound, httpx.CodeOrderNotFound, err.Error(), nil)
			return
		}
		siblings, err := d.Store.ListShipmentsByOrder(r.Context(), req.OrderID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}

		sh := model.Shipment{
			ID:              "shp_" + uuid.NewString(),
			OrderID:         req.OrderID,
			ShipmentNo:      int64(len(siblings)) + 1,
			Supplier:        req.Supplier,
			Buyer:           req.Buyer,
			AssignedCourier: req.AssignedCourier,
			PickupLat:       req.PickupLat,
			PickupLon:       req.PickupLon,
			DropLat:         req.DropLat,
			DropLon:         req.DropLon,
			DueBy:           dueBy,
			Status:          model.ShipmentCreated,
		}

		orderIDBig, err := wire.ParseUint256(ord.ChainOrderID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}
		shipmentIDArr := cryptox.Keccak256UTF8(sh.ID)
		registerTx, err := d.Chain.RegisterShipment(r.Context(), shipmentIDArr, orderIDBig,
			common.HexToAddress(sh.Buyer), common.HexToAddress(sh.Supplier), common.HexToAddress(sh.AssignedCourier))
		if err != nil {
			httpx.WriteError(w, http.StatusBadGateway, httpx.CodeChainFailed, err.Error(), nil)
			return
		}
		sh.Metadata.Onchain = &model.OnchainMetadata{RegisterTx: registerTx}

		if err := d.Store.CreateShipment(r.Context(), sh); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}

		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"request_id":  httpx.NewRequestID(),
			"shipmentId":  sh.ID,
			"shipmentNo":  sh.ShipmentNo,
			"registerTx":  registerTx,
		})
	}
}

type updateShipmentCourierRequest struct {
	Courier string `json:"courier"`
}

func updateShipmentCourierHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID := chi.URLParam(r, "shipmentId")
		var req updateShipmentCourierRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
			return
		}

		sh, err := d.Store.GetShipment(r.Context(), shipmentID)
		if err != nil {
			httpx.WriteError(w, http.StatusNotFound, httpx.CodeShipmentNotFound, err.Error(), nil)
			return
		}
		if sh.Status != model.ShipmentCreated {
			httpx.WriteError(w, http.StatusConflict, httpx.CodeShipmentState, "courier can only be reassigned before pickup", nil)
			return
		}

		shipmentIDArr := cryptox.Keccak256UTF8(sh.ID)
		tx, err := d.Chain.UpdateCourier(r.Context(), shipmentIDArr, common.HexToAddress(req.Courier))
		if err != nil {
			httpx.WriteError(w, http.StatusBadGateway, httpx.CodeChainFailed, err.Error(), nil)
			return
		}
		if err := d.Store.UpdateShipmentCourier(r.Context(), shipmentID, req.Courier); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"ok":         true,
			"updateCourierTx": tx,
		})
	}
}

type escrowPaymentRequest struct {
	Payer    string `json:"payer"`
	Payee    string `json:"payee"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// escrowPaymentHandler implements the payments/{orderId}/escrow step: ensures the on-chain
// order exists, approves the escrow contract for the token spend, marks the order funded, and
// records the payment as escrowed; the on-chain calls again precede the DB commit.
func escrowPaymentHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderId")
		var req escrowPaymentRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadAmount, "amount must be a decimal string", nil)
			return
		}

		ord, err := d.Store.GetOrder(r.Context(), orderID)
		if err != nil {
			httpx.WriteError(w, http.StatusNotFound, httpx.CodeOrderNotFound, err.Error(), nil)
			return
		}
		orderIDBig, err := wire.ParseUint256(ord.ChainOrderID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}
		amountWei := amount.BigInt()

		createTx, err := d.Chain.CreateOrderIfMissing(r.Context(), orderIDBig,
			common.HexToAddress(ord.Buyer), common.HexToAddress(ord.Supplier), amountWei)
		if err != nil {
			httpx.WriteError(w, http.StatusBadGateway, httpx.CodeChainFailed, err.Error(), nil)
			return
		}
		approveTx, err := d.Chain.EnsureAllowance(r.Context(), d.Chain.OracleAddress(), d.Chain.EscrowAddress(), amountWei)
		if err != nil {
			httpx.WriteError(w, http.StatusBadGateway, httpx.CodeChainFailed, err.Error(), nil)
			return
		}
		fundTx, err := d.Chain.MarkFunded(r.Context(), orderIDBig)
		if err != nil {
			httpx.WriteError(w, http.StatusBadGateway, httpx.CodeChainFailed, err.Error(), nil)
			return
		}

		if err := d.Store.MarkOrderFunded(r.Context(), orderID); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}
		payment := model.Payment{
			ID:       "pay_" + uuid.NewString(),
			OrderID:  orderID,
			Payer:    req.Payer,
			Payee:    req.Payee,
			Amount:   amount,
			Currency: req.Currency,
			Status:   model.PaymentEscrowed,
			EscrowTx: fundTx,
		}
		if err := d.Store.UpsertPayment(r.Context(), payment); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, err.Error(), nil)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"ok":         true,
			"createOrderTx": emptyToNil(createTx),
			"approveTx":     emptyToNil(approveTx),
			"fundTx":        fundTx,
		})
	}
}
