package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"argus/internal"
	"argus/internal/audit"
	"argus/internal/config"
	"argus/internal/logger"
	"argus/internal/report"
	"argus/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type auditOptions struct {
	Address     string
	TargetFile  string
	Chain       string
	FromBlock   uint64
	ToBlock     uint64
	WindowSize  uint64
	SkipSlither bool
	NoHistory   bool
	ShowHistory int
	ReportDir   string
	Verbose     bool
}

func main() {
	opts := parseFlags()

	_ = godotenv.Load()

	if err := logger.InitLogger(); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	if err := run(opts); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func parseFlags() *auditOptions {
	opts := &auditOptions{}

	flag.StringVar(&opts.Address, "addr", "", "Contract address to audit")
	flag.StringVar(&opts.TargetFile, "file", "", "File with one contract address per line (txt or yaml)")
	flag.StringVar(&opts.Chain, "chain", "mainnet", "Chain name from settings.yaml (e.g. mainnet, sepolia)")
	flag.Uint64Var(&opts.FromBlock, "from", 0, "Start block for the event scan (default: head minus lookback)")
	flag.Uint64Var(&opts.ToBlock, "to", 0, "End block for the event scan (default: chain head)")
	flag.Uint64Var(&opts.WindowSize, "window", 0, "Log query window size in blocks (default from settings)")
	flag.BoolVar(&opts.SkipSlither, "skip-slither", false, "Skip the external slither pass")
	flag.BoolVar(&opts.NoHistory, "no-history", false, "Do not record this run in the audit history database")
	flag.IntVar(&opts.ShowHistory, "history", 0, "Print the last N recorded audits for -addr and exit")
	flag.StringVar(&opts.ReportDir, "o", "", "Report output directory (default from settings)")
	flag.BoolVar(&opts.Verbose, "v", false, "Verbose logging")

	flag.Parse()
	return opts
}

func run(opts *auditOptions) error {
	if opts.Address == "" && opts.TargetFile == "" {
		return fmt.Errorf("missing target: use -addr or -file")
	}

	appCfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	chainCfg, err := appCfg.GetChainConfig(opts.Chain)
	if err != nil {
		return err
	}

	if opts.ShowHistory > 0 {
		if opts.Address == "" {
			return fmt.Errorf("-history requires -addr")
		}
		return printHistory(appCfg.Database, opts.Address, opts.ShowHistory)
	}

	// Credentials are checked before any network call.
	apiKey := strings.TrimSpace(os.Getenv("ETHERSCAN_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(chainCfg.Explorer.APIKey)
	}
	if apiKey == "" {
		return fmt.Errorf("ETHERSCAN_API_KEY is required (env or settings.yaml)")
	}

	if err := internal.ValidateProxyURL(appCfg.Proxy); err != nil {
		return fmt.Errorf("invalid proxy setting: %w", err)
	}

	cfg := config.DefaultAuditConfiguration()
	cfg.Chain = opts.Chain
	cfg.APIKey = apiKey
	cfg.SkipSlither = opts.SkipSlither
	cfg.RecordHistory = !opts.NoHistory
	cfg.Proxy = appCfg.Proxy
	cfg.Verbose = opts.Verbose
	cfg.WindowSize = appCfg.Audit.LogWindowSize
	cfg.Lookback = appCfg.Audit.LookbackBlocks
	cfg.DownloadDir = appCfg.Audit.DownloadDir
	cfg.ReportDir = appCfg.Audit.ReportDir
	if opts.WindowSize > 0 {
		cfg.WindowSize = opts.WindowSize
	}
	if opts.ReportDir != "" {
		cfg.ReportDir = opts.ReportDir
	}
	if opts.FromBlock > 0 || opts.ToBlock > 0 {
		if opts.ToBlock > 0 && opts.ToBlock < opts.FromBlock {
			return fmt.Errorf("invalid block range: %d-%d", opts.FromBlock, opts.ToBlock)
		}
		// End 0 means "up to the chain head", resolved at scan time
		cfg.BlockRange = &config.BlockRange{Start: opts.FromBlock, End: opts.ToBlock}
	}

	rpcManager, err := config.NewRPCManager(opts.Chain, chainCfg.RPCURLs, cfg.Timeout, appCfg.Proxy)
	if err != nil {
		return fmt.Errorf("failed to set up RPC: %w", err)
	}
	defer rpcManager.Close()

	client, err := rpcManager.GetClient()
	if err != nil {
		return fmt.Errorf("failed to connect to an RPC node: %w", err)
	}
	logger.Info("⛓️  %s via %s", rpcManager.GetChainName(), rpcManager.GetCurrentURL())

	var history *store.Store
	if cfg.RecordHistory {
		history, err = store.Open(appCfg.Database)
		if err != nil {
			logger.Warn("audit history disabled: %v", err)
			history = nil
		} else {
			defer history.Close()
		}
	}

	auditor := audit.New(cfg, chainCfg, client, history)
	ctx := context.Background()

	if opts.TargetFile != "" {
		addresses, err := internal.ReadAddressFile(opts.TargetFile)
		if err != nil {
			return fmt.Errorf("failed to read target file: %w", err)
		}
		logger.Info("📋 Loaded %d unique target addresses", len(addresses))
		return auditor.RunBatch(ctx, addresses)
	}

	rep, path, err := auditor.RunAudit(ctx, opts.Address)
	if err != nil {
		return err
	}

	printSummary(rep, path)
	return nil
}

func printHistory(dbCfg config.DatabaseConfig, address string, limit int) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid contract address: %s", address)
	}

	history, err := store.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to open audit history: %w", err)
	}
	defer history.Close()

	recs, err := history.History(common.HexToAddress(address).Hex(), limit)
	if err != nil {
		return fmt.Errorf("failed to query audit history: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No recorded audits for this address.")
		return nil
	}

	for _, rec := range recs {
		findings := rec.InitFunctions + rec.UnprotectedInits + rec.UnprotectedRoleSetters + rec.InternalTransferCalls
		events := rec.TransferEvents + rec.BlacklistedEvents + rec.UpgradedEvents
		fmt.Printf("%s  chain=%s findings=%d events=%d report=%s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Chain, findings, events, rec.ReportPath)
	}
	return nil
}

func printSummary(rep *report.Report, path string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("ARGUS AUDIT SNAPSHOT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Address: %s\n", rep.Address)
	if rep.Implementation != "" {
		fmt.Printf("Implementation: %s\n", rep.Implementation)
	}
	fmt.Printf("Heuristic findings: %d\n", rep.TotalFindings())
	fmt.Printf("Classified events: %d\n", rep.TotalEvents())
	fmt.Printf("Report: %s\n", path)
	fmt.Println(strings.Repeat("=", 60))
}
