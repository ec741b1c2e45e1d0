package config

import (
	"time"
)

type AuditConfiguration struct {
	// Target
	Chain         string
	TargetAddress string
	TargetFile    string
	BlockRange    *BlockRange // nil means lookback window ending at chain head; End 0 closes at the head

	// Explorer
	APIKey string // final key after env override

	// Behavior
	SkipSlither   bool
	WindowSize    uint64
	Lookback      uint64
	Timeout       time.Duration
	DownloadDir   string
	ReportDir     string
	RecordHistory bool

	// System
	Proxy   string
	Verbose bool
}

type BlockRange struct {
	Start uint64
	End   uint64
}

func DefaultAuditConfiguration() AuditConfiguration {
	return AuditConfiguration{
		Chain:         "mainnet",
		WindowSize:    50000,
		Lookback:      200000,
		Timeout:       30 * time.Second,
		DownloadDir:   "downloads",
		ReportDir:     "reports",
		RecordHistory: true,
	}
}
