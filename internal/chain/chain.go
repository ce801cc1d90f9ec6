// Package chain wraps the three on-chain contracts (Escrow, OrderRegistry, ShipmentRegistry)
// plus the ERC-20 payment token behind a small, idempotent Go surface. There is no
// abigen-generated binding available for these contracts, so the bound-contract construction
// follows go-ethereum's own low-level pattern (abi.JSON + bind.BoundContract) rather than
// generated wrappers, driving the contracts through a hand-assembled ABI interface rather than a
// generated client.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/accordsai/podx/internal/appmetrics"
	"github.com/accordsai/podx/internal/config"
	"github.com/accordsai/podx/internal/cryptox"
	"github.com/accordsai/podx/internal/eip712"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrOracleMismatch is fatal: the configured signer is not the registry's recognised oracle.
var ErrOracleMismatch = errors.New("chain: oracle signer does not match OrderRegistry.deliveryOracle()")

// Gateway holds the bound contracts and the oracle's transaction signer. One Gateway is
// constructed at process startup and lives for the process lifetime.
type Gateway struct {
	client *ethclient.Client

	chainID    *big.Int
	auth       *bind.TransactOpts
	oracleAddr common.Address

	escrow               *bind.BoundContract
	escrowAddr           common.Address
	orderRegistry        *bind.BoundContract
	shipmentRegistry     *bind.BoundContract
	shipmentRegistryABI  abi.ABI
	token                *bind.BoundContract
	shipmentRegistryAddr common.Address

	rewardPerMeter int64
}

// New dials the configured RPC endpoint, binds the three contracts plus the payment token, and
// verifies the oracle key matches OrderRegistry.deliveryOracle() before returning, so the process
// refuses to start with a misconfigured signer.
func New(ctx context.Context, cfg config.Config) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	priv, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OraclePrivateKey, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: parse oracle private key: %w", err)
	}
	chainID := big.NewInt(cfg.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(priv, chainID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: build transactor: %w", err)
	}
	oracleAddr := crypto.PubkeyToAddress(priv.PublicKey)

	escrowABI, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: parse escrow abi: %w", err)
	}
	orderRegistryABI, err := abi.JSON(strings.NewReader(orderRegistryABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: parse order registry abi: %w", err)
	}
	shipmentRegistryABI, err := abi.JSON(strings.NewReader(shipmentRegistryABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: parse shipment registry abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}

	shipmentRegistryAddr := common.HexToAddress(cfg.ShipmentRegistryAddress)
	escrowAddr := common.HexToAddress(cfg.EscrowAddress)

	g := &Gateway{
		client:                client,
		chainID:               chainID,
		auth:                  auth,
		oracleAddr:            oracleAddr,
		escrow:                bind.NewBoundContract(escrowAddr, escrowABI, client, client, client),
		escrowAddr:            escrowAddr,
		orderRegistry:         bind.NewBoundContract(common.HexToAddress(cfg.OrderRegistryAddress), orderRegistryABI, client, client, client),
		shipmentRegistry:      bind.NewBoundContract(shipmentRegistryAddr, shipmentRegistryABI, client, client, client),
		shipmentRegistryABI:   shipmentRegistryABI,
		token:                 bind.NewBoundContract(common.HexToAddress(cfg.TokenAddress), erc20ABI, client, client, client),
		shipmentRegistryAddr:  shipmentRegistryAddr,
		rewardPerMeter:        cfg.RewardPerMeter,
	}

	registered, err := g.DeliveryOracle(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: read deliveryOracle: %w", err)
	}
	if !cryptox.EqualAddress(registered.Hex(), oracleAddr.Hex()) {
		client.Close()
		return nil, fmt.Errorf("%w: configured=%s registered=%s", ErrOracleMismatch, oracleAddr.Hex(), registered.Hex())
	}
	return g, nil
}

// Close releases the underlying RPC connection.
func (g *Gateway) Close() {
	g.client.Close()
}

// OracleAddress returns the address the process is signing with.
func (g *Gateway) OracleAddress() common.Address { return g.oracleAddr }

// EscrowAddress returns the bound Escrow contract's address, used as the spender when approving
// the payment token allowance in the escrow-funding handler.
func (g *Gateway) EscrowAddress() common.Address { return g.escrowAddr }

// Client exposes the underlying ethclient.Client so callers (sigverify.New) can use it directly
// as a sigverify.ContractCaller without an adapter.
func (g *Gateway) Client() *ethclient.Client { return g.client }

// DeliveryOracle reads OrderRegistry.deliveryOracle().
func (g *Gateway) DeliveryOracle(ctx context.Context) (addr common.Address, err error) {
	defer observeCall("DeliveryOracle", time.Now(), &err)
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err = g.orderRegistry.Call(opts, &out, "deliveryOracle"); err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// OrderOnChain is the OrderRegistry.orders(orderId) view result.
type OrderOnChain struct {
	Buyer    common.Address
	Supplier common.Address
	Amount   *big.Int
	Status   uint8
}

func (g *Gateway) orderOnChain(ctx context.Context, orderID *big.Int) (result OrderOnChain, err error) {
	defer observeCall("orders", time.Now(), &err)
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err = g.orderRegistry.Call(opts, &out, "orders", orderID); err != nil {
		return OrderOnChain{}, err
	}
	return OrderOnChain{
		Buyer:    out[0].(common.Address),
		Supplier: out[1].(common.Address),
		Amount:   out[2].(*big.Int),
		Status:   out[3].(uint8),
	}, nil
}

// Order reads OrderRegistry.orders(orderId), used by the settlement coordinator to find the
// on-chain supplier amount for the courier-reward cap.
func (g *Gateway) Order(ctx context.Context, orderID *big.Int) (OrderOnChain, error) {
	return g.orderOnChain(ctx, orderID)
}

// CreateOrderIfMissing calls OrderRegistry.createOrder unless the order already has a non-zero
// buyer on chain, matching the idempotent-submitter contract of skipping createOrder if the
// order already exists.
func (g *Gateway) CreateOrderIfMissing(ctx context.Context, orderID *big.Int, buyer, supplier common.Address, amount *big.Int) (txHash string, err error) {
	defer observeCall("createOrder", time.Now(), &err)
	existing, lookupErr := g.orderOnChain(ctx, orderID)
	if lookupErr == nil && existing.Buyer != (common.Address{}) {
		return "", nil
	}
	tx, err := g.orderRegistry.Transact(g.auth, "createOrder", orderID, buyer, supplier, amount)
	if err != nil {
		return "", err
	}
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err = fmt.Errorf("chain: createOrder reverted, tx=%s", tx.Hash().Hex())
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// EnsureAllowance approves the escrow contract to move at least amount of the payment token on
// the oracle's behalf, skipping the transaction if the existing allowance already covers it.
func (g *Gateway) EnsureAllowance(ctx context.Context, owner, spender common.Address, amount *big.Int) (txHash string, err error) {
	defer observeCall("approve", time.Now(), &err)
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err = g.token.Call(opts, &out, "allowance", owner, spender); err != nil {
		return "", err
	}
	current := out[0].(*big.Int)
	if current.Cmp(amount) >= 0 {
		return "", nil
	}
	tx, err := g.token.Transact(g.auth, "approve", spender, amount)
	if err != nil {
		return "", err
	}
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err = fmt.Errorf("chain: approve reverted, tx=%s", tx.Hash().Hex())
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// MarkFunded calls OrderRegistry.markFunded(orderId).
func (g *Gateway) MarkFunded(ctx context.Context, orderID *big.Int) (txHash string, err error) {
	defer observeCall("markFunded", time.Now(), &err)
	tx, err := g.orderRegistry.Transact(g.auth, "markFunded", orderID)
	if err != nil {
		return "", err
	}
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err = fmt.Errorf("chain: markFunded reverted, tx=%s", tx.Hash().Hex())
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// EscrowedBalance reads Escrow.escrowed(orderId), used to cap the courier reward at
// escrowedBalance-supplierAmount, the ceiling on the courier reward.
func (g *Gateway) EscrowedBalance(ctx context.Context, orderID *big.Int) (balance *big.Int, err error) {
	defer observeCall("escrowed", time.Now(), &err)
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err = g.escrow.Call(opts, &out, "escrowed", orderID); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// RegisterShipment calls ShipmentRegistry.registerShipment.
func (g *Gateway) RegisterShipment(ctx context.Context, shipmentID [32]byte, orderID *big.Int, buyer, supplier, courier common.Address) (txHash string, err error) {
	defer observeCall("registerShipment", time.Now(), &err)
	tx, err := g.shipmentRegistry.Transact(g.auth, "registerShipment", shipmentID, orderID, buyer, supplier, courier)
	if err != nil {
		return "", err
	}
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err = fmt.Errorf("chain: registerShipment reverted, tx=%s", tx.Hash().Hex())
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// UpdateCourier calls ShipmentRegistry.updateCourier.
func (g *Gateway) UpdateCourier(ctx context.Context, shipmentID [32]byte, courier common.Address) (txHash string, err error) {
	defer observeCall("updateCourier", time.Now(), &err)
	tx, err := g.shipmentRegistry.Transact(g.auth, "updateCourier", shipmentID, courier)
	if err != nil {
		return "", err
	}
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err = fmt.Errorf("chain: updateCourier reverted, tx=%s", tx.Hash().Hex())
		return "", err
	}
	return tx.Hash().Hex(), nil
}

type pickupApprovalTuple struct {
	ShipmentId   [32]byte
	OrderId      *big.Int
	LocationHash [32]byte
	ClaimedTs    uint64
}

type dropApprovalTuple struct {
	ShipmentId     [32]byte
	OrderId        *big.Int
	LocationHash   [32]byte
	ClaimedTs      uint64
	DistanceMeters *big.Int
}

// ConfirmPickup calls ShipmentRegistry.confirmPickup with both counter-signatures, waits for the
// receipt, and returns the transaction hash. Called after both the courier and supplier have
// countersigned.
func (g *Gateway) ConfirmPickup(ctx context.Context, approval eip712.Approval, courierSig, counterpartySig []byte) (txHash string, err error) {
	defer observeCall("confirmPickup", time.Now(), &err)
	arg := pickupApprovalTuple{
		ShipmentId:   approval.ShipmentHash,
		OrderId:      approval.OrderID,
		LocationHash: approval.LocationHash,
		ClaimedTs:    uint64(approval.ClaimedTs),
	}
	tx, err := g.shipmentRegistry.Transact(g.auth, "confirmPickup", arg, courierSig, counterpartySig)
	if err != nil {
		return "", err
	}
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err = fmt.Errorf("chain: confirmPickup reverted, tx=%s", tx.Hash().Hex())
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// DropResult carries the outcome of a confirmDrop call, including the courierReward parsed from
// the DropApproved event log when available.
type DropResult struct {
	TxHash        string
	CourierReward *big.Int // nil if the event log couldn't be parsed; caller falls back
}

// ConfirmDrop calls ShipmentRegistry.confirmDrop, waits for the receipt, and attempts to parse
// the DropApproved event's courierReward field. A parse failure is not
// itself an error: CourierReward is left nil and the settlement coordinator applies its
// distance-based fallback.
func (g *Gateway) ConfirmDrop(ctx context.Context, approval eip712.Approval, courierSig, counterpartySig []byte, lineItemsJSON, metadataURI string) (result DropResult, err error) {
	defer observeCall("confirmDrop", time.Now(), &err)
	arg := dropApprovalTuple{
		ShipmentId:     approval.ShipmentHash,
		OrderId:        approval.OrderID,
		LocationHash:   approval.LocationHash,
		ClaimedTs:      uint64(approval.ClaimedTs),
		DistanceMeters: big.NewInt(approval.DistanceMeters),
	}
	tx, err := g.shipmentRegistry.Transact(g.auth, "confirmDrop", arg, courierSig, counterpartySig, lineItemsJSON, metadataURI)
	if err != nil {
		return DropResult{}, err
	}
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return DropResult{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err = fmt.Errorf("chain: confirmDrop reverted, tx=%s", tx.Hash().Hex())
		return DropResult{}, err
	}
	reward := g.parseDropApprovedReward(receipt.Logs)
	return DropResult{TxHash: tx.Hash().Hex(), CourierReward: reward}, nil
}

func (g *Gateway) parseDropApprovedReward(logs []*types.Log) *big.Int {
	for _, lg := range logs {
		if lg.Address != g.shipmentRegistryAddr || len(lg.Topics) == 0 {
			continue
		}
		ev, err := g.shipmentRegistryABI.EventByID(lg.Topics[0])
		if err != nil || ev.Name != "DropApproved" {
			continue
		}
		values, err := ev.Inputs.Unpack(lg.Data)
		if err != nil || len(values) < 6 {
			continue
		}
		reward, ok := values[5].(*big.Int)
		if !ok {
			continue
		}
		return reward
	}
	return nil
}

// FindPickupApproved scans shipment registry logs from fromBlock for a PickupApproved event
// matching shipmentID, returning the transaction hash that emitted it. Used by the recovery
// sweep to detect a confirmPickup call that succeeded on chain without its DB commit landing.
func (g *Gateway) FindPickupApproved(ctx context.Context, shipmentID [32]byte, fromBlock *big.Int) (string, bool, error) {
	logs, err := g.FetchLogs(ctx, fromBlock, nil)
	if err != nil {
		return "", false, err
	}
	ev := g.shipmentRegistryABI.Events["PickupApproved"]
	for _, lg := range logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		values, err := ev.Inputs.Unpack(lg.Data)
		if err != nil || len(values) == 0 {
			continue
		}
		id, ok := values[0].([32]byte)
		if !ok || id != shipmentID {
			continue
		}
		return lg.TxHash.Hex(), true, nil
	}
	return "", false, nil
}

// FindDropApproved scans shipment registry logs from fromBlock for a DropApproved event
// matching shipmentID, returning the transaction hash and courierReward (nil if undecodable).
func (g *Gateway) FindDropApproved(ctx context.Context, shipmentID [32]byte, fromBlock *big.Int) (string, *big.Int, bool, error) {
	logs, err := g.FetchLogs(ctx, fromBlock, nil)
	if err != nil {
		return "", nil, false, err
	}
	ev := g.shipmentRegistryABI.Events["DropApproved"]
	for _, lg := range logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		values, err := ev.Inputs.Unpack(lg.Data)
		if err != nil || len(values) < 6 {
			continue
		}
		id, ok := values[0].([32]byte)
		if !ok || id != shipmentID {
			continue
		}
		reward, _ := values[5].(*big.Int)
		return lg.TxHash.Hex(), reward, true, nil
	}
	return "", nil, false, nil
}

// FetchLogs filters historical logs on the shipment registry between fromBlock and toBlock,
// used by the recovery sweep to reconcile sessions whose on-chain call may have already
// succeeded without a matching database commit.
func (g *Gateway) FetchLogs(ctx context.Context, fromBlock, toBlock *big.Int) ([]types.Log, error) {
	return g.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []common.Address{g.shipmentRegistryAddr},
	})
}

// RewardPerMeter returns the configured fallback reward rate for courier payouts.
func (g *Gateway) RewardPerMeter() int64 { return g.rewardPerMeter }

// observeCall times an on-chain gateway method and records podx_onchain_call_latency_seconds /
// podx_onchain_call_failed_total against it. Called via defer with the named error return, the
// same way the HTTP layer defers its own request-duration observation.
func observeCall(method string, start time.Time, err *error) {
	appmetrics.OnchainCallLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if *err != nil {
		appmetrics.OnchainCallFailedTotal.WithLabelValues(method).Inc()
	}
}
