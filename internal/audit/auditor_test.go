package audit

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"argus/internal/chain"
	"argus/internal/config"
	"argus/internal/etherscan"
	"argus/internal/heuristics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	proxyAddr = "0x1111111111111111111111111111111111111111"
	implAddr  = "0x2222222222222222222222222222222222222222"
)

type fakeReader struct {
	StorageAtFunc   func(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	FilterLogsFunc  func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumberFunc func(ctx context.Context) (uint64, error)
}

func (f *fakeReader) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return f.StorageAtFunc(ctx, account, key, blockNumber)
}

func (f *fakeReader) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return f.FilterLogsFunc(ctx, q)
}

func (f *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	return f.BlockNumberFunc(ctx)
}

func implSlotWord(addr string) []byte {
	word := make([]byte, 32)
	copy(word[12:], common.HexToAddress(addr).Bytes())
	return word
}

func testConfig(t *testing.T) config.AuditConfiguration {
	t.Helper()
	cfg := config.DefaultAuditConfiguration()
	cfg.SkipSlither = true
	cfg.RecordHistory = false
	cfg.DownloadDir = filepath.Join(t.TempDir(), "downloads")
	cfg.ReportDir = filepath.Join(t.TempDir(), "reports")
	cfg.BlockRange = &config.BlockRange{Start: 100, End: 200}
	return cfg
}

func testChainConfig() *config.ChainConfig {
	return &config.ChainConfig{
		Name:    "Ethereum Mainnet",
		ChainID: 1,
		Explorer: config.Explorer{
			BaseURL: "https://api.etherscan.io",
		},
	}
}

func TestRunAuditProxyPipeline(t *testing.T) {
	var logQueries []ethereum.FilterQuery
	reader := &fakeReader{
		StorageAtFunc: func(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
			return implSlotWord(implAddr), nil
		},
		FilterLogsFunc: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			logQueries = append(logQueries, q)
			return []types.Log{
				{BlockNumber: 150, TxHash: common.HexToHash("0x01"), Topics: []common.Hash{chain.TransferTopic}},
			}, nil
		},
	}

	var fetched []string
	cfg := testConfig(t)
	auditor := New(cfg, testChainConfig(), reader, nil)
	auditor.fetch = func(address string, _ etherscan.Config) (*etherscan.ContractInfo, error) {
		fetched = append(fetched, address)
		return &etherscan.ContractInfo{
			SourceCode:   `{"sources": {"Token.sol": {"content": "function initialize() public {"}}}`,
			ContractName: "Token",
		}, nil
	}

	rep, path, err := auditor.RunAudit(context.Background(), proxyAddr)
	require.NoError(t, err)

	// source comes from the implementation, logs from the proxy itself
	assert.Equal(t, []string{common.HexToAddress(implAddr).Hex()}, fetched)
	require.Len(t, logQueries, 1)
	assert.Equal(t, []common.Address{common.HexToAddress(proxyAddr)}, logQueries[0].Addresses)

	assert.Equal(t, common.HexToAddress(proxyAddr).Hex(), rep.Address)
	assert.Equal(t, common.HexToAddress(implAddr).Hex(), rep.Implementation)
	assert.Len(t, rep.Findings[heuristics.CategoryUnprotectedInits], 1)
	require.NotNil(t, rep.LogScan)
	assert.Len(t, rep.LogScan.Events[chain.EventTransfer], 1)

	_, err = os.Stat(filepath.Join(cfg.DownloadDir, common.HexToAddress(implAddr).Hex(), "Token.sol"))
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestRunAuditNonProxy(t *testing.T) {
	reader := &fakeReader{
		StorageAtFunc: func(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
			return nil, errors.New("slot read failed")
		},
		FilterLogsFunc: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
			return nil, nil
		},
	}

	var fetched []string
	auditor := New(testConfig(t), testChainConfig(), reader, nil)
	auditor.fetch = func(address string, _ etherscan.Config) (*etherscan.ContractInfo, error) {
		fetched = append(fetched, address)
		return &etherscan.ContractInfo{SourceCode: "contract C {}", ContractName: "C"}, nil
	}

	rep, _, err := auditor.RunAudit(context.Background(), proxyAddr)
	require.NoError(t, err)

	assert.Equal(t, []string{common.HexToAddress(proxyAddr).Hex()}, fetched)
	assert.Empty(t, rep.Implementation)
}

func TestRunAuditRejectsInvalidAddress(t *testing.T) {
	auditor := New(testConfig(t), testChainConfig(), &fakeReader{}, nil)

	_, _, err := auditor.RunAudit(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestRunAuditSourceFetchFailureIsFatal(t *testing.T) {
	reader := &fakeReader{
		StorageAtFunc: func(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
			return nil, errors.New("no proxy")
		},
	}

	auditor := New(testConfig(t), testChainConfig(), reader, nil)
	auditor.fetch = func(string, etherscan.Config) (*etherscan.ContractInfo, error) {
		return nil, etherscan.ErrNotVerified
	}

	_, _, err := auditor.RunAudit(context.Background(), proxyAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, etherscan.ErrNotVerified)
}

func TestRunAuditSkipsLogScanWhenHeadUnavailable(t *testing.T) {
	reader := &fakeReader{
		StorageAtFunc: func(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
			return nil, errors.New("no proxy")
		},
		BlockNumberFunc: func(context.Context) (uint64, error) {
			return 0, errors.New("head unavailable")
		},
	}

	cfg := testConfig(t)
	cfg.BlockRange = nil
	auditor := New(cfg, testChainConfig(), reader, nil)
	auditor.fetch = func(string, etherscan.Config) (*etherscan.ContractInfo, error) {
		return &etherscan.ContractInfo{SourceCode: "contract C {}", ContractName: "C"}, nil
	}

	rep, _, err := auditor.RunAudit(context.Background(), proxyAddr)
	require.NoError(t, err)
	assert.Nil(t, rep.LogScan)
}

func TestRunAuditOpenEndedRangeClosesAtHead(t *testing.T) {
	reader := &fakeReader{
		StorageAtFunc: func(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
			return nil, errors.New("no proxy")
		},
		FilterLogsFunc: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
			return nil, nil
		},
		BlockNumberFunc: func(context.Context) (uint64, error) {
			return 250, nil
		},
	}

	cfg := testConfig(t)
	// only a start block given; the end resolves to the chain head
	cfg.BlockRange = &config.BlockRange{Start: 100}
	auditor := New(cfg, testChainConfig(), reader, nil)
	auditor.fetch = func(string, etherscan.Config) (*etherscan.ContractInfo, error) {
		return &etherscan.ContractInfo{SourceCode: "contract C {}", ContractName: "C"}, nil
	}

	rep, _, err := auditor.RunAudit(context.Background(), proxyAddr)
	require.NoError(t, err)
	require.NotNil(t, rep.LogScan)
	assert.Equal(t, uint64(100), rep.FromBlock)
	assert.Equal(t, uint64(250), rep.ToBlock)
}

func TestFetchSourceIsDeduplicated(t *testing.T) {
	reader := &fakeReader{
		StorageAtFunc: func(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
			// both proxies point at the same implementation
			return implSlotWord(implAddr), nil
		},
		FilterLogsFunc: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
			return nil, nil
		},
	}

	var calls int64
	auditor := New(testConfig(t), testChainConfig(), reader, nil)
	auditor.fetch = func(string, etherscan.Config) (*etherscan.ContractInfo, error) {
		atomic.AddInt64(&calls, 1)
		return &etherscan.ContractInfo{SourceCode: "contract C {}", ContractName: "C"}, nil
	}

	_, _, err := auditor.RunAudit(context.Background(), proxyAddr)
	require.NoError(t, err)
	_, _, err = auditor.RunAudit(context.Background(), "0x9999999999999999999999999999999999999999")
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestRunBatch(t *testing.T) {
	reader := &fakeReader{
		StorageAtFunc: func(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
			return nil, errors.New("no proxy")
		},
		FilterLogsFunc: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
			return nil, nil
		},
	}

	auditor := New(testConfig(t), testChainConfig(), reader, nil)
	auditor.fetch = func(address string, _ etherscan.Config) (*etherscan.ContractInfo, error) {
		if address == common.HexToAddress(implAddr).Hex() {
			return nil, etherscan.ErrNotVerified
		}
		return &etherscan.ContractInfo{SourceCode: "contract C {}", ContractName: "C"}, nil
	}

	// one failure does not fail the batch
	err := auditor.RunBatch(context.Background(), []string{proxyAddr, implAddr})
	assert.NoError(t, err)

	// a fully failed batch does
	err = auditor.RunBatch(context.Background(), []string{implAddr})
	assert.Error(t, err)

	assert.Error(t, auditor.RunBatch(context.Background(), nil))
}
