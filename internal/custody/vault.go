// Package custody provides in-process implementations of the ledger's
// value-transfer primitive.
package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// MemoryVault keeps account balances and the ledger's custody balance in
// memory. It is the default transfer primitive for single-process
// deployments and for tests.
type MemoryVault struct {
	mu       sync.Mutex
	custody  *uint256.Int
	balances map[common.Address]*uint256.Int
}

// NewMemoryVault returns a vault whose custody starts at initial. A nil
// initial is zero.
func NewMemoryVault(initial *uint256.Int) *MemoryVault {
	c := new(uint256.Int)
	if initial != nil {
		c.Set(initial)
	}
	return &MemoryVault{
		custody:  c,
		balances: make(map[common.Address]*uint256.Int),
	}
}

// Credit adds amount to addr's spendable balance.
func (v *MemoryVault) Credit(addr common.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.balance(addr)
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("custody: credit %s: %w", addr.Hex(), domain.ErrAmountOverflow)
	}
	v.balances[addr] = sum
	return nil
}

// Balance returns addr's spendable balance.
func (v *MemoryVault) Balance(addr common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance(addr).Clone()
}

// TransferIn moves amount from addr's balance into custody.
func (v *MemoryVault) TransferIn(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.balance(from)
	if bal.Lt(amount) {
		return fmt.Errorf("custody: %s holds %s, needs %s: %w",
			from.Hex(), bal.Dec(), amount.Dec(), domain.ErrInsufficientFunds)
	}
	next, overflow := new(uint256.Int).AddOverflow(v.custody, amount)
	if overflow {
		return fmt.Errorf("custody: transfer in: %w", domain.ErrAmountOverflow)
	}
	v.balances[from] = new(uint256.Int).Sub(bal, amount)
	v.custody = next
	return nil
}

// TransferOut moves amount from custody to addr's balance.
func (v *MemoryVault) TransferOut(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.custody.Lt(amount) {
		return fmt.Errorf("custody: holds %s, owes %s: %w",
			v.custody.Dec(), amount.Dec(), domain.ErrInsufficientFunds)
	}
	next, overflow := new(uint256.Int).AddOverflow(v.balance(to), amount)
	if overflow {
		return fmt.Errorf("custody: transfer out: %w", domain.ErrAmountOverflow)
	}
	v.custody = new(uint256.Int).Sub(v.custody, amount)
	v.balances[to] = next
	return nil
}

// Custody returns the balance held on behalf of stakers.
func (v *MemoryVault) Custody(_ context.Context) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.custody.Clone(), nil
}

func (v *MemoryVault) balance(addr common.Address) *uint256.Int {
	if b, ok := v.balances[addr]; ok {
		return b
	}
	return new(uint256.Int)
}
