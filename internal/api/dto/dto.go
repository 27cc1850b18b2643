package dto

import (
	"time"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

type SubmitOrderRequest struct {
	WalletCode string          `json:"walletCode" binding:"required,max=50"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity" binding:"required,gt=0"`
}

type SubmitOrderResponse struct {
	Order   Order  `json:"order"`
	Message string `json:"message,omitempty"`
}

type Order struct {
	ID         string          `json:"id"`
	WalletCode string          `json:"walletCode"`
	Side       domain.Side     `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	Remaining  int64           `json:"remainingQuantity"`
	Filled     int64           `json:"filledQuantity"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Trade struct {
	ID          string          `json:"id"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	Timestamp   time.Time       `json:"createdAt"`
}

type Wallet struct {
	Code      string          `json:"walletCode"`
	Amount    decimal.Decimal `json:"amount"`
	Quantity  int64           `json:"quantity"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
}

type GetOrderResponse struct {
	Order Order `json:"order"`
}

type GetTradesResponse struct {
	Trades []Trade `json:"trades"`
}

type ListWalletsResponse struct {
	Wallets []Wallet `json:"wallets"`
}

type DepthLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

type GetOrderbookResponse struct {
	Symbol    string       `json:"symbol"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

type ReloadResponse struct {
	Ok     bool `json:"ok"`
	Orders int  `json:"orders"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	StatusActive    = "ACTIVE"
	StatusFulfilled = "FULFILLED"
)

func FromOrder(o *domain.Order) Order {
	status := StatusActive
	if o.Fulfilled() {
		status = StatusFulfilled
	}
	return Order{
		ID:         o.ID,
		WalletCode: o.WalletCode,
		Side:       o.Side,
		Price:      o.Price,
		Quantity:   o.Quantity,
		Remaining:  o.Remaining,
		Filled:     o.Filled(),
		Status:     status,
		CreatedAt:  o.CreatedAt,
	}
}

func FromOrders(orders []*domain.Order) []Order {
	res := make([]Order, len(orders))
	for i, o := range orders {
		res[i] = FromOrder(o)
	}
	return res
}

func FromTrades(trades []*domain.Trade) []Trade {
	res := make([]Trade, len(trades))
	for i, t := range trades {
		res[i] = Trade{
			ID:          t.ID,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Price:       t.Price,
			Quantity:    t.Quantity,
			Timestamp:   t.Timestamp,
		}
	}
	return res
}

func FromWallets(wallets []*domain.Wallet) []Wallet {
	res := make([]Wallet, len(wallets))
	for i, w := range wallets {
		res[i] = Wallet{Code: w.Code, Amount: w.Amount, Quantity: w.Quantity, UpdatedAt: w.UpdatedAt}
	}
	return res
}

func FromDepth(d *domain.Depth) GetOrderbookResponse {
	convert := func(levels []domain.DepthLevel) []DepthLevel {
		res := make([]DepthLevel, len(levels))
		for i, l := range levels {
			res[i] = DepthLevel{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders}
		}
		return res
	}
	return GetOrderbookResponse{
		Symbol:    d.Symbol,
		Bids:      convert(d.Bids),
		Asks:      convert(d.Asks),
		Timestamp: d.Timestamp,
	}
}
