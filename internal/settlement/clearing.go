package settlement

import (
	"fmt"

	"github.com/rawblock/clearing-engine/pkg/models"
)

// ClearingAccount holds one member's cash position at the clearing
// house. Balances are fixed-point integer ticks.
type ClearingAccount struct {
	AccountID  uint64 `json:"accountId"`
	Balance    int64  `json:"balance"`
	MarginHeld int64  `json:"marginHeld"`
}

// AccountNotFoundError — the referenced account is not registered.
type AccountNotFoundError struct {
	AccountID uint64 `json:"accountId"`
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %d not found", e.AccountID)
}

// InsufficientBalanceError — the deliverer cannot fund the obligation.
type InsufficientBalanceError struct {
	AccountID uint64 `json:"accountId"`
	Required  int64  `json:"required"`
	Available int64  `json:"available"`
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("account %d has insufficient balance: required %d, available %d",
		e.AccountID, e.Required, e.Available)
}

// ClearingResult is the per-obligation outcome of a batch clearing
// attempt.
type ClearingResult struct {
	Obligation models.NetObligation `json:"obligation"`
	Success    bool                 `json:"success"`
	Err        error                `json:"-"`
}

// ClearingHouse maintains member account balances and settles net
// obligations. Not safe for shared mutation; GetAccount is read-only.
type ClearingHouse struct {
	accounts map[uint64]*ClearingAccount
}

// NewClearingHouse creates an empty clearing house.
func NewClearingHouse() *ClearingHouse {
	return &ClearingHouse{
		accounts: make(map[uint64]*ClearingAccount),
	}
}

// RegisterAccount inserts an account with the given balance, replacing
// any existing account with the same id. Margin held resets to zero.
func (ch *ClearingHouse) RegisterAccount(id uint64, initialBalance int64) {
	ch.accounts[id] = &ClearingAccount{
		AccountID: id,
		Balance:   initialBalance,
	}
}

// GetAccount returns a copy of the account, or false if unregistered.
func (ch *ClearingHouse) GetAccount(id uint64) (ClearingAccount, bool) {
	acc, ok := ch.accounts[id]
	if !ok {
		return ClearingAccount{}, false
	}
	return *acc, true
}

// AccountCount returns the number of registered accounts.
func (ch *ClearingHouse) AccountCount() int {
	return len(ch.accounts)
}

// ClearObligation settles a single obligation: the deliverer is
// debited net_payment and the receiver credited. Preconditions are
// checked before any mutation — deliverer existence, receiver
// existence, then deliverer balance — so a failed attempt leaves both
// balances untouched. Zero-payment obligations succeed without moving
// cash.
func (ch *ClearingHouse) ClearObligation(ob models.NetObligation) error {
	deliverer, ok := ch.accounts[ob.DelivererID]
	if !ok {
		return &AccountNotFoundError{AccountID: ob.DelivererID}
	}
	receiver, ok := ch.accounts[ob.ReceiverID]
	if !ok {
		return &AccountNotFoundError{AccountID: ob.ReceiverID}
	}

	if deliverer.Balance < ob.NetPayment {
		return &InsufficientBalanceError{
			AccountID: ob.DelivererID,
			Required:  ob.NetPayment,
			Available: deliverer.Balance,
		}
	}

	deliverer.Balance -= ob.NetPayment
	receiver.Balance += ob.NetPayment
	return nil
}

// ClearAll attempts every obligation in input order, returning one
// result per obligation. Failures do not roll back earlier successes;
// partial settlement is the contract.
func (ch *ClearingHouse) ClearAll(obligations []models.NetObligation) []ClearingResult {
	results := make([]ClearingResult, 0, len(obligations))
	for _, ob := range obligations {
		err := ch.ClearObligation(ob)
		results = append(results, ClearingResult{
			Obligation: ob,
			Success:    err == nil,
			Err:        err,
		})
	}
	return results
}
