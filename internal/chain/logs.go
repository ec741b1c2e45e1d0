package chain

import (
	"context"
	"math/big"

	"argus/internal/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultLogWindow is the widest block span asked of a provider in one
// getLogs call; public endpoints commonly reject larger ranges.
const DefaultLogWindow uint64 = 50000

type EventKind string

const (
	EventTransfer    EventKind = "transfer"
	EventBlacklisted EventKind = "blacklisted"
	EventUpgraded    EventKind = "upgraded"
)

// EventKinds in report order.
var EventKinds = []EventKind{EventTransfer, EventBlacklisted, EventUpgraded}

var (
	TransferTopic    = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	BlacklistedTopic = crypto.Keccak256Hash([]byte("Blacklisted(address)"))
	UpgradedTopic    = crypto.Keccak256Hash([]byte("Upgraded(address)"))
)

type LogEvent struct {
	BlockNumber uint64
	TxHash      common.Hash
	Topics      []common.Hash
}

// LogScan is the result of one windowed retrieval. SkippedWindows counts
// queries that failed and were dropped; the per-kind slices hold only
// classified events, in window order.
type LogScan struct {
	Events         map[EventKind][]LogEvent
	Windows        int
	SkippedWindows int
}

type BlockWindow struct {
	Start uint64
	End   uint64
}

// Windows partitions the inclusive range [from, to] into consecutive spans
// of at most size blocks, ascending.
func Windows(from, to, size uint64) []BlockWindow {
	if to < from {
		return nil
	}
	if size == 0 {
		size = DefaultLogWindow
	}

	var out []BlockWindow
	for start := from; ; start += size {
		end := to
		if start+size-1 < to {
			end = start + size - 1
		}
		out = append(out, BlockWindow{Start: start, End: end})
		if end == to {
			break
		}
	}
	return out
}

// Classify maps a log's first topic to an event kind. Unrecognized topics
// are dropped by the retriever.
func Classify(topic0 common.Hash) (EventKind, bool) {
	switch topic0 {
	case TransferTopic:
		return EventTransfer, true
	case BlacklistedTopic:
		return EventBlacklisted, true
	case UpgradedTopic:
		return EventUpgraded, true
	default:
		return "", false
	}
}

// RetrieveLogs fetches and classifies historical logs emitted by addr over
// [fromBlock, toBlock]. Each window is one provider query; a failed window
// is skipped so that partial history still reaches the report.
func RetrieveLogs(ctx context.Context, r Reader, addr common.Address, fromBlock, toBlock, windowSize uint64) *LogScan {
	scan := &LogScan{
		Events: map[EventKind][]LogEvent{
			EventTransfer:    {},
			EventBlacklisted: {},
			EventUpgraded:    {},
		},
	}

	for _, w := range Windows(fromBlock, toBlock, windowSize) {
		scan.Windows++

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(w.Start),
			ToBlock:   new(big.Int).SetUint64(w.End),
			Addresses: []common.Address{addr},
		}

		logs, err := r.FilterLogs(ctx, query)
		if err != nil {
			logger.Warn("log window [%d, %d] dropped: %v", w.Start, w.End, err)
			scan.SkippedWindows++
			continue
		}

		for _, l := range logs {
			if len(l.Topics) == 0 {
				continue
			}
			kind, ok := Classify(l.Topics[0])
			if !ok {
				continue
			}
			scan.Events[kind] = append(scan.Events[kind], LogEvent{
				BlockNumber: l.BlockNumber,
				TxHash:      l.TxHash,
				Topics:      append([]common.Hash(nil), l.Topics...),
			})
		}
	}

	return scan
}
