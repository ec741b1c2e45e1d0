package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"argus/internal/chain"
	"argus/internal/config"
	"argus/internal/etherscan"
	"argus/internal/heuristics"
	"argus/internal/logger"
	"argus/internal/report"
	"argus/internal/slither"
	"argus/internal/sources"
	"argus/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// SourceFetcher fetches a verified-source record; swapped out in tests.
type SourceFetcher func(address string, cfg etherscan.Config) (*etherscan.ContractInfo, error)

// Auditor runs one audit pipeline per target address:
// resolve proxy -> fetch source -> expand -> scan -> slither -> log scan.
type Auditor struct {
	cfg      config.AuditConfiguration
	chainCfg *config.ChainConfig
	reader   chain.Reader
	history  *store.Store // nil disables history
	reporter *report.Reporter
	fetch    SourceFetcher

	sourceCache sync.Map // checksummed address -> *etherscan.ContractInfo
	sourceSF    singleflight.Group
}

func New(cfg config.AuditConfiguration, chainCfg *config.ChainConfig, reader chain.Reader, history *store.Store) *Auditor {
	return &Auditor{
		cfg:      cfg,
		chainCfg: chainCfg,
		reader:   reader,
		history:  history,
		reporter: report.NewReporter(report.NewMarkdownGenerator(), report.NewFileStorage(cfg.ReportDir)),
		fetch:    etherscan.GetVerifiedSource,
	}
}

// RunAudit audits a single address and returns the assembled report plus
// the path of the written report file.
func (a *Auditor) RunAudit(ctx context.Context, address string) (*report.Report, string, error) {
	if !common.IsHexAddress(strings.TrimSpace(address)) {
		return nil, "", fmt.Errorf("invalid contract address: %s", address)
	}
	addr := common.HexToAddress(strings.TrimSpace(address))

	logger.Info("🔍 Auditing %s on %s", addr.Hex(), a.cfg.Chain)

	// Proxy resolution is best-effort; a nil result means "not a proxy".
	impl := chain.ResolveImplementation(ctx, a.reader, addr)
	target := addr
	if impl != nil {
		target = *impl
		logger.Info("Proxy detected, implementation: %s", target.Hex())
	}

	// No findings are possible without source, so this failure ends the run.
	info, err := a.fetchSource(target.Hex())
	if err != nil {
		return nil, "", fmt.Errorf("source fetch for %s failed: %w", target.Hex(), err)
	}

	units := sources.Expand(info.SourceCode, info.ContractName)
	sourceDir := filepath.Join(a.cfg.DownloadDir, target.Hex())
	if _, err := sources.Materialize(sourceDir, units); err != nil {
		return nil, "", fmt.Errorf("failed to materialize source for %s: %w", target.Hex(), err)
	}
	logger.InfoFileOnly("Materialized %d source units under %s", len(units), sourceDir)

	rep := report.NewReport(addr.Hex(), a.cfg.Chain)
	if impl != nil {
		rep.Implementation = impl.Hex()
	}
	rep.Findings = heuristics.Scan(sources.Concat(units))
	for _, category := range heuristics.Categories {
		if n := len(rep.Findings[category]); n > 0 || a.cfg.Verbose {
			logger.Info("  %s: %d", category, n)
		}
	}

	if !a.cfg.SkipSlither {
		if out, ok := slither.Run(ctx, sourceDir); ok {
			rep.Slither = out
		}
	}

	fromBlock, toBlock, ok := a.blockRange(ctx)
	if ok {
		rep.FromBlock = fromBlock
		rep.ToBlock = toBlock
		// events are scanned on the entry address, not the implementation:
		// a proxy emits from its own address
		rep.LogScan = chain.RetrieveLogs(ctx, a.reader, addr, fromBlock, toBlock, a.cfg.WindowSize)
	}

	path, err := a.reporter.GenerateAndSave(rep)
	if err != nil {
		return nil, "", err
	}

	a.recordHistory(rep, path)

	return rep, path, nil
}

// RunBatch audits each address sequentially. Individual failures are logged
// and do not stop the batch; the returned error reflects a fully failed run.
func (a *Auditor) RunBatch(ctx context.Context, addresses []string) error {
	if len(addresses) == 0 {
		return fmt.Errorf("no target addresses")
	}

	failures := 0
	for i, addr := range addresses {
		logger.Info("[%d/%d] %s", i+1, len(addresses), addr)
		if _, path, err := a.RunAudit(ctx, addr); err != nil {
			logger.Error("audit of %s failed: %v", addr, err)
			failures++
		} else {
			logger.Info("Report saved: %s", path)
		}
	}

	if failures == len(addresses) {
		return fmt.Errorf("all %d audits failed", failures)
	}
	return nil
}

// fetchSource dedupes explorer lookups across a batch: proxies sharing one
// implementation fetch its source a single time.
func (a *Auditor) fetchSource(addr string) (*etherscan.ContractInfo, error) {
	if v, ok := a.sourceCache.Load(addr); ok {
		return v.(*etherscan.ContractInfo), nil
	}
	v, err, _ := a.sourceSF.Do(addr, func() (interface{}, error) {
		if vv, ok := a.sourceCache.Load(addr); ok {
			return vv, nil
		}
		info, err := a.fetch(addr, etherscan.Config{
			APIKey:  a.cfg.APIKey,
			BaseURL: a.chainCfg.Explorer.BaseURL,
			Proxy:   a.cfg.Proxy,
			ChainID: a.chainCfg.ChainID,
		})
		if err != nil {
			return nil, err
		}
		a.sourceCache.Store(addr, info)
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*etherscan.ContractInfo), nil
}

// blockRange picks the configured range, or a lookback window ending at the
// chain head. A range with End 0 is open-ended and closes at the head. An
// unreachable head degrades to no log scan.
func (a *Auditor) blockRange(ctx context.Context) (uint64, uint64, bool) {
	if a.cfg.BlockRange != nil && a.cfg.BlockRange.End > 0 {
		return a.cfg.BlockRange.Start, a.cfg.BlockRange.End, true
	}

	head, err := a.reader.BlockNumber(ctx)
	if err != nil {
		logger.Warn("could not fetch chain head, skipping log scan: %v", err)
		return 0, 0, false
	}

	if a.cfg.BlockRange != nil {
		return a.cfg.BlockRange.Start, head, true
	}

	from := uint64(0)
	if head > a.cfg.Lookback {
		from = head - a.cfg.Lookback
	}
	return from, head, true
}

func (a *Auditor) recordHistory(rep *report.Report, path string) {
	if a.history == nil || !a.cfg.RecordHistory {
		return
	}

	rec := &store.AuditRecord{
		Address:        rep.Address,
		Chain:          rep.Chain,
		Implementation: rep.Implementation,
		FromBlock:      rep.FromBlock,
		ToBlock:        rep.ToBlock,

		InitFunctions:          len(rep.Findings[heuristics.CategoryInitFunctions]),
		UnprotectedInits:       len(rep.Findings[heuristics.CategoryUnprotectedInits]),
		UnprotectedRoleSetters: len(rep.Findings[heuristics.CategoryRoleSetters]),
		InternalTransferCalls:  len(rep.Findings[heuristics.CategoryInternalTransfers]),

		SlitherRan: rep.Slither != "",
		ReportPath: path,
	}
	if rep.LogScan != nil {
		rec.TransferEvents = len(rep.LogScan.Events[chain.EventTransfer])
		rec.BlacklistedEvents = len(rep.LogScan.Events[chain.EventBlacklisted])
		rec.UpgradedEvents = len(rep.LogScan.Events[chain.EventUpgraded])
		rec.SkippedWindows = rep.LogScan.SkippedWindows
	}

	if err := a.history.Record(rec); err != nil {
		logger.Warn("failed to record audit history: %v", err)
	}
}
