package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// Ledger owns the authoritative balance state of every wallet known to a book.
// Lookups hand out the owned record itself so a mutation is visible to every
// later lookup within the same matching pass.
type Ledger struct {
	wallets map[string]*domain.Wallet
}

func NewLedger() *Ledger {
	return &Ledger{wallets: make(map[string]*domain.Wallet)}
}

// Register adds a copy of w to the ledger. The first registration of a code wins.
func (l *Ledger) Register(w *domain.Wallet) bool {
	if w == nil || w.Code == "" {
		return false
	}
	if _, exists := l.wallets[w.Code]; exists {
		return false
	}
	l.wallets[w.Code] = w.Clone()
	return true
}

func (l *Ledger) Wallet(code string) (*domain.Wallet, bool) {
	w, ok := l.wallets[code]
	return w, ok
}

func (l *Ledger) Len() int {
	return len(l.wallets)
}

// Wallets returns copies of all wallets ordered by code.
func (l *Ledger) Wallets() []*domain.Wallet {
	res := make([]*domain.Wallet, 0, len(l.wallets))
	for _, w := range l.wallets {
		res = append(res, w.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res
}

// transfer moves qty units of asset from seller to buyer and notional currency
// from buyer to seller as one step.
func (l *Ledger) transfer(buyer, seller *domain.Wallet, qty int64, notional decimal.Decimal, at time.Time) {
	seller.Quantity -= qty
	seller.Amount = seller.Amount.Add(notional)
	seller.UpdatedAt = at

	buyer.Quantity += qty
	buyer.Amount = buyer.Amount.Sub(notional)
	buyer.UpdatedAt = at
}

func checkWallet(w *domain.Wallet) error {
	if w.Amount.IsNegative() {
		return fmt.Errorf("%w: wallet %s amount %s is negative", domain.ErrInvariantViolation, w.Code, w.Amount)
	}
	if w.Quantity < 0 {
		return fmt.Errorf("%w: wallet %s quantity %d is negative", domain.ErrInvariantViolation, w.Code, w.Quantity)
	}
	return nil
}
