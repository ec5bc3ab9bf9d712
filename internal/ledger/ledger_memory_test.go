package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorbook/pkg/platform/sentinel"
	"visitorbook/pkg/platform/tx"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

func balance(t *testing.T, l *InMemoryLedger, addr common.Address) uint64 {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), addr)
	require.NoError(t, err)
	return b.Uint64()
}

func TestInMemoryLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown account has zero balance", func(t *testing.T) {
		l := NewInMemory()
		assert.Equal(t, uint64(0), balance(t, l, alice))
	})

	t.Run("mint then transfer moves funds", func(t *testing.T) {
		l := NewInMemory()
		require.NoError(t, l.Mint(ctx, alice, uint256.NewInt(250)))
		require.NoError(t, l.Transfer(ctx, alice, bob, uint256.NewInt(100)))

		assert.Equal(t, uint64(150), balance(t, l, alice))
		assert.Equal(t, uint64(100), balance(t, l, bob))
	})

	t.Run("overdraft fails and leaves balances untouched", func(t *testing.T) {
		l := NewInMemory()
		require.NoError(t, l.Mint(ctx, alice, uint256.NewInt(50)))

		err := l.Transfer(ctx, alice, bob, uint256.NewInt(51))
		require.ErrorIs(t, err, sentinel.ErrInsufficientFunds)
		assert.Equal(t, uint64(50), balance(t, l, alice))
		assert.Equal(t, uint64(0), balance(t, l, bob))
	})

	t.Run("self transfer is a no-op when covered", func(t *testing.T) {
		l := NewInMemory()
		require.NoError(t, l.Mint(ctx, alice, uint256.NewInt(10)))
		require.NoError(t, l.Transfer(ctx, alice, alice, uint256.NewInt(10)))
		assert.Equal(t, uint64(10), balance(t, l, alice))
	})

	t.Run("mint refuses to overflow", func(t *testing.T) {
		l := NewInMemory()
		ceiling := new(uint256.Int).SetAllOne()
		require.NoError(t, l.Mint(ctx, alice, ceiling))
		assert.Error(t, l.Mint(ctx, alice, uint256.NewInt(1)))
	})

	t.Run("returned balance does not alias state", func(t *testing.T) {
		l := NewInMemory()
		require.NoError(t, l.Mint(ctx, alice, uint256.NewInt(7)))
		b, _ := l.BalanceOf(ctx, alice)
		b.SetUint64(1000)
		assert.Equal(t, uint64(7), balance(t, l, alice))
	})

	t.Run("failed locked call reverts its movements", func(t *testing.T) {
		l := NewInMemory()
		require.NoError(t, l.Mint(ctx, alice, uint256.NewInt(100)))

		err := tx.NewLockRunner(0).RunInTx(ctx, func(ctx context.Context) error {
			require.NoError(t, l.Mint(ctx, bob, uint256.NewInt(5)))
			require.NoError(t, l.Transfer(ctx, alice, bob, uint256.NewInt(60)))
			return errors.New("abort")
		})
		require.Error(t, err)
		assert.Equal(t, uint64(100), balance(t, l, alice))
		assert.Equal(t, uint64(0), balance(t, l, bob))
	})
}
