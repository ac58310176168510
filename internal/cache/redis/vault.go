package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// maxTxRetries bounds optimistic retries when a watched key changes under a
// transfer.
const maxTxRetries = 16

// Vault implements domain.Transfer over Redis. Balances are decimal wei
// strings; each move is a WATCH/MULTI transaction so the debit and credit
// commit together or not at all.
type Vault struct {
	rdb    *redis.Client
	prefix string
}

// NewVault returns a vault keyed under prefix and seeds custody with
// initial the first time the prefix is used. Later starts keep the stored
// balance.
func NewVault(ctx context.Context, c *Client, prefix string, initial *uint256.Int) (*Vault, error) {
	v := &Vault{rdb: c.Underlying(), prefix: prefix}
	seed := "0"
	if initial != nil {
		seed = initial.Dec()
	}
	if err := v.rdb.SetNX(ctx, v.custodyKey(), seed, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis: seed custody: %w", err)
	}
	return v, nil
}

func (v *Vault) custodyKey() string {
	return v.prefix + "custody"
}

func (v *Vault) balanceKey(addr common.Address) string {
	return v.prefix + "balance:" + addr.Hex()
}

// Credit adds amount to addr's spendable balance. It only succeeds if the
// credited account does not overflow.
func (v *Vault) Credit(ctx context.Context, addr common.Address, amount *uint256.Int) error {
	key := v.balanceKey(addr)
	return v.transact(ctx, func(tx *redis.Tx) error {
		bal, err := readAmount(ctx, tx, key)
		if err != nil {
			return err
		}
		next, overflow := new(uint256.Int).AddOverflow(bal, amount)
		if overflow {
			return domain.ErrAmountOverflow
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next.Dec(), 0)
			return nil
		})
		return err
	}, key)
}

// Seed sets addr's balance to amount only if the account has never been
// written, so genesis credits survive restarts without doubling. It
// reports whether the seed was applied.
func (v *Vault) Seed(ctx context.Context, addr common.Address, amount *uint256.Int) (bool, error) {
	ok, err := v.rdb.SetNX(ctx, v.balanceKey(addr), amount.Dec(), 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis: seed %s: %w", addr.Hex(), err)
	}
	return ok, nil
}

// Balance returns addr's spendable balance.
func (v *Vault) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return readAmount(ctx, v.rdb, v.balanceKey(addr))
}

// TransferIn moves amount from addr's balance into custody.
func (v *Vault) TransferIn(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if err := v.move(ctx, v.balanceKey(from), v.custodyKey(), amount); err != nil {
		return fmt.Errorf("redis: transfer in from %s: %w", from.Hex(), err)
	}
	return nil
}

// TransferOut moves amount from custody to addr's balance.
func (v *Vault) TransferOut(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := v.move(ctx, v.custodyKey(), v.balanceKey(to), amount); err != nil {
		return fmt.Errorf("redis: transfer out to %s: %w", to.Hex(), err)
	}
	return nil
}

// Custody returns the balance held on behalf of stakers.
func (v *Vault) Custody(ctx context.Context) (*uint256.Int, error) {
	return readAmount(ctx, v.rdb, v.custodyKey())
}

func (v *Vault) move(ctx context.Context, fromKey, toKey string, amount *uint256.Int) error {
	return v.transact(ctx, func(tx *redis.Tx) error {
		from, err := readAmount(ctx, tx, fromKey)
		if err != nil {
			return err
		}
		to, err := readAmount(ctx, tx, toKey)
		if err != nil {
			return err
		}
		if from.Lt(amount) {
			return fmt.Errorf("holds %s, needs %s: %w", from.Dec(), amount.Dec(), domain.ErrInsufficientFunds)
		}
		credited, overflow := new(uint256.Int).AddOverflow(to, amount)
		if overflow {
			return domain.ErrAmountOverflow
		}
		debited := new(uint256.Int).Sub(from, amount)

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, fromKey, debited.Dec(), 0)
			p.Set(ctx, toKey, credited.Dec(), 0)
			return nil
		})
		return err
	}, fromKey, toKey)
}

func (v *Vault) transact(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := v.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis: vault contention on %v", keys)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readAmount(ctx context.Context, g getter, key string) (*uint256.Int, error) {
	s, err := g.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read %s: %w", key, err)
	}
	amt, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("redis: parse %s: %w", key, err)
	}
	return amt, nil
}

var _ domain.Transfer = (*Vault)(nil)
