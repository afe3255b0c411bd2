// Package codec encodes domain objects into the exact field layout,
// units and type encoding the exchange's signature scheme requires.
package codec

import (
	"fmt"
	"math/big"
	"time"

	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Enumerated order fields. The wire values are the exchange's
// canonical constants.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"

	TifGTC = "gtc"
	TifIOC = "ioc"
	TifFOK = "fok"
)

// Instrument kinds accepted at the tool boundary, mapped to the
// exchange's instrument_type constants.
var kindConstants = map[string]string{
	"option":    "option",
	"perp":      "perp",
	"perpetual": "perp",
	"spot":      "erc20",
	"erc20":     "erc20",
}

// FixedPointDecimals is the exchange's fixed-point scale for prices,
// amounts and fees inside signed module data.
const FixedPointDecimals = 18

// OrderParams is the validated domain form of a place_order call.
type OrderParams struct {
	InstrumentName string
	Side           string
	OrderType      string
	Price          decimal.Decimal // zero for market orders
	Amount         decimal.Decimal
	TimeInForce    string
	ReduceOnly     bool
	PostOnly       bool
	Label          string // optional client order id
	ExpirySec      int64  // 0 means use the codec default horizon
}

// Validate enforces the order invariants locally, before any signing
// or network work.
func (p *OrderParams) Validate() error {
	if p.InstrumentName == "" {
		return apperrors.NewValidation("instrument_name is required")
	}
	if p.Side != SideBuy && p.Side != SideSell {
		return apperrors.NewValidation(fmt.Sprintf("invalid side %q (want buy or sell)", p.Side))
	}
	switch p.OrderType {
	case OrderTypeLimit:
		if !p.Price.IsPositive() {
			return apperrors.NewValidation("limit orders require price > 0")
		}
	case OrderTypeMarket:
		// Market orders take their worst-case price from the book at
		// encode time; a caller-supplied price is rejected rather than
		// silently ignored.
		if !p.Price.IsZero() {
			return apperrors.NewValidation("market orders must not carry a price")
		}
	default:
		return apperrors.NewValidation(fmt.Sprintf("invalid order type %q (want limit or market)", p.OrderType))
	}
	if !p.Amount.IsPositive() {
		return apperrors.NewValidation("amount must be > 0")
	}
	switch p.TimeInForce {
	case "", TifGTC, TifIOC, TifFOK:
	default:
		return apperrors.NewValidation(fmt.Sprintf("invalid time_in_force %q", p.TimeInForce))
	}
	return nil
}

// KindConstant maps a caller-facing instrument kind to the exchange
// constant, failing validation for unknown kinds.
func KindConstant(kind string) (string, error) {
	c, ok := kindConstants[kind]
	if !ok {
		return "", apperrors.NewValidation(fmt.Sprintf("invalid instrument kind %q (want option, perp or spot)", kind))
	}
	return c, nil
}

// InstrumentInfo carries the per-instrument protocol identity needed
// to encode trade module data. Sourced from the public ticker on every
// call; never cached across calls.
type InstrumentInfo struct {
	AssetAddress common.Address
	SubID        *big.Int
}

// Action is the canonical signable unit of the exchange protocol: a
// module call scoped to a subaccount, bounded by nonce and expiry.
type Action struct {
	SubaccountID int64
	Nonce        uint64
	Module       common.Address
	Data         []byte
	ExpirySec    int64
	Owner        common.Address
	Signer       common.Address
}

// Digest computes the EIP-712 digest the signer signs:
// keccak256(0x1901 || domainSeparator || structHash) where structHash
// hashes the action typehash and the seven action slots.
func (a *Action) Digest(table *ProtocolTable) []byte {
	// typehash + 7 fields, each a 32-byte slot
	data := make([]byte, 32*8)
	copy(data[0:32], table.ActionTypehash.Bytes())
	copy(data[32:64], math.U256Bytes(big.NewInt(a.SubaccountID)))
	copy(data[64:96], math.U256Bytes(new(big.Int).SetUint64(a.Nonce)))
	copy(data[96+12:128], a.Module.Bytes())
	copy(data[128:160], crypto.Keccak256(a.Data))
	copy(data[160:192], math.U256Bytes(big.NewInt(a.ExpirySec)))
	copy(data[192+12:224], a.Owner.Bytes())
	copy(data[224+12:256], a.Signer.Bytes())

	structHash := crypto.Keccak256(data)
	return crypto.Keccak256([]byte{0x19, 0x01}, table.DomainSeparator.Bytes(), structHash)
}

// TradeData is the trade module payload: the order expressed in the
// exchange's fixed-point integer units.
type TradeData struct {
	Asset       common.Address
	SubID       *big.Int
	LimitPrice  *big.Int // int256, 1e18 scale
	Amount      *big.Int // int256, 1e18 scale, negative for sells
	MaxFee      *big.Int // uint256, 1e18 scale
	RecipientID int64
	IsBid       bool
}

// Encode lays the trade data out as seven static ABI slots. Negative
// amounts use two's complement int256 encoding.
func (t *TradeData) Encode() []byte {
	data := make([]byte, 32*7)
	copy(data[0+12:32], t.Asset.Bytes())
	copy(data[32:64], math.U256Bytes(new(big.Int).Set(t.SubID)))
	copy(data[64:96], math.U256Bytes(new(big.Int).Set(t.LimitPrice)))
	copy(data[96:128], math.U256Bytes(new(big.Int).Set(t.Amount)))
	copy(data[128:160], math.U256Bytes(new(big.Int).Set(t.MaxFee)))
	copy(data[160:192], math.U256Bytes(big.NewInt(t.RecipientID)))
	if t.IsBid {
		data[223] = 1
	}
	return data
}

// DecodeTradeData reverses Encode. Used to verify round-trip encoding.
func DecodeTradeData(data []byte) (*TradeData, error) {
	if len(data) != 32*7 {
		return nil, fmt.Errorf("trade data must be %d bytes, got %d", 32*7, len(data))
	}
	return &TradeData{
		Asset:       common.BytesToAddress(data[12:32]),
		SubID:       new(big.Int).SetBytes(data[32:64]),
		LimitPrice:  toSigned(new(big.Int).SetBytes(data[64:96])),
		Amount:      toSigned(new(big.Int).SetBytes(data[96:128])),
		MaxFee:      new(big.Int).SetBytes(data[128:160]),
		RecipientID: new(big.Int).SetBytes(data[160:192]).Int64(),
		IsBid:       data[223] == 1,
	}, nil
}

var twoPow255 = new(big.Int).Lsh(big.NewInt(1), 255)
var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

// toSigned interprets a 256-bit unsigned value as int256 two's
// complement.
func toSigned(v *big.Int) *big.Int {
	if v.Cmp(twoPow255) >= 0 {
		return v.Sub(v, twoPow256)
	}
	return v
}

// Codec builds signable actions under a validated protocol table.
type Codec struct {
	table         *ProtocolTable
	maxFee        decimal.Decimal
	defaultExpiry time.Duration
}

func New(table *ProtocolTable, maxFee decimal.Decimal, defaultExpiry time.Duration) *Codec {
	return &Codec{
		table:         table,
		maxFee:        maxFee,
		defaultExpiry: defaultExpiry,
	}
}

func (c *Codec) Table() *ProtocolTable {
	return c.table
}

// MaxFee is the configured fee ceiling signed into every order.
func (c *Codec) MaxFee() decimal.Decimal {
	return c.maxFee
}

// EncodeOrder converts a validated order into a signable Action. The
// price passed here is always concrete: for market orders the caller
// resolves a worst-case price from the book first.
func (c *Codec) EncodeOrder(p *OrderParams, price decimal.Decimal, inst InstrumentInfo, subaccountID int64, owner, signerAddr common.Address, nonce uint64) (*Action, *TradeData, error) {
	limitPrice, err := ToFixed(price)
	if err != nil {
		return nil, nil, apperrors.NewValidation(fmt.Sprintf("price: %v", err))
	}
	amount, err := ToFixed(p.Amount)
	if err != nil {
		return nil, nil, apperrors.NewValidation(fmt.Sprintf("amount: %v", err))
	}
	maxFee, err := ToFixed(c.maxFee)
	if err != nil {
		return nil, nil, apperrors.NewProtocolMismatch(fmt.Sprintf("max fee: %v", err))
	}
	if p.Side == SideSell {
		amount = amount.Neg(amount)
	}

	expiry := p.ExpirySec
	if expiry == 0 {
		expiry = time.Now().Add(c.defaultExpiry).Unix()
	}
	if expiry <= time.Now().Unix() {
		return nil, nil, apperrors.NewValidation("expiry must be in the future")
	}

	trade := &TradeData{
		Asset:       inst.AssetAddress,
		SubID:       inst.SubID,
		LimitPrice:  limitPrice,
		Amount:      amount,
		MaxFee:      maxFee,
		RecipientID: subaccountID,
		IsBid:       p.Side == SideBuy,
	}

	action := &Action{
		SubaccountID: subaccountID,
		Nonce:        nonce,
		Module:       c.table.TradeModule,
		Data:         trade.Encode(),
		ExpirySec:    expiry,
		Owner:        owner,
		Signer:       signerAddr,
	}
	return action, trade, nil
}

// CancelPayload is the canonical cancellation request. Cancels are
// authenticated by the signed session headers; the exchange does not
// require a per-action signature for them.
type CancelPayload struct {
	SubaccountID   int64  `json:"subaccount_id"`
	OrderID        string `json:"order_id,omitempty"`
	InstrumentName string `json:"instrument_name,omitempty"`
}

// EncodeCancel builds a single-order cancellation payload.
func (c *Codec) EncodeCancel(subaccountID int64, orderID string) (*CancelPayload, error) {
	if orderID == "" {
		return nil, apperrors.NewValidation("order_id is required")
	}
	return &CancelPayload{SubaccountID: subaccountID, OrderID: orderID}, nil
}

// EncodeCancelAll builds one cancel-all payload, optionally scoped to
// an instrument. Never expands into per-order cancellations.
func (c *Codec) EncodeCancelAll(subaccountID int64, instrumentName string) *CancelPayload {
	return &CancelPayload{SubaccountID: subaccountID, InstrumentName: instrumentName}
}

// ToFixed converts a human-denominated decimal to the exchange's
// 18-decimal fixed-point integer. Values with precision beyond the
// scale are rejected rather than rounded, so the round trip is exact.
func ToFixed(d decimal.Decimal) (*big.Int, error) {
	shifted := d.Shift(FixedPointDecimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("value %s exceeds %d decimal places", d.String(), FixedPointDecimals)
	}
	return shifted.BigInt(), nil
}

// FromFixed reverses ToFixed.
func FromFixed(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -FixedPointDecimals)
}
