package chain

import (
	"context"
	"math/big"

	"argus/internal/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Reader is the chain-state surface this package needs. *ethclient.Client
// satisfies it; tests substitute a fake.
type Reader interface {
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ImplementationSlot is the EIP-1967 implementation slot:
// keccak256("eip1967.proxy.implementation") - 1.
var ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

// ResolveImplementation reads the EIP-1967 slot of addr and returns the
// implementation address stored there, or nil if addr is not a recognized
// proxy. Proxy detection is best-effort context: every failure degrades to
// nil and the audit proceeds against addr itself.
func ResolveImplementation(ctx context.Context, r Reader, addr common.Address) *common.Address {
	word, err := r.StorageAt(ctx, addr, ImplementationSlot, nil)
	if err != nil {
		logger.Debug("storage slot read failed for %s: %v", addr.Hex(), err)
		return nil
	}

	impl, ok := ImplementationFromSlotWord(word)
	if !ok {
		return nil
	}
	return &impl
}

// ImplementationFromSlotWord interprets the low-order 20 bytes of a 32-byte
// storage word as an implementation address. A word of any other length is
// rejected, as is the zero address: a proxy that was never upgraded-to
// anything is not a proxy for audit purposes.
func ImplementationFromSlotWord(word []byte) (common.Address, bool) {
	if len(word) != common.HashLength {
		return common.Address{}, false
	}
	impl := common.BytesToAddress(word[common.HashLength-common.AddressLength:])
	if impl == (common.Address{}) {
		return common.Address{}, false
	}
	return impl, true
}
