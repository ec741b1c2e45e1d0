package report

import (
	"fmt"
	"time"

	"argus/internal/chain"
	"argus/internal/heuristics"
)

// Report is the assembled evidence for one audited contract; rendering and
// persistence live behind the Generator and Storage seams.
type Report struct {
	Address        string
	Chain          string
	Implementation string // empty when the target is not a recognized proxy
	ScanTime       time.Time
	FromBlock      uint64
	ToBlock        uint64

	Findings map[heuristics.Category][]heuristics.Finding
	Slither  string
	LogScan  *chain.LogScan
}

type Generator interface {
	Generate(report *Report) (string, error)
}

type Storage interface {
	Save(report *Report, content string) (string, error)
}

type Reporter struct {
	generator Generator
	storage   Storage
}

func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

func (r *Reporter) GenerateAndSave(report *Report) (string, error) {
	content, err := r.generator.Generate(report)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	filepath, err := r.storage.Save(report, content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	return filepath, nil
}

func NewReport(address, chainName string) *Report {
	return &Report{
		Address:  address,
		Chain:    chainName,
		ScanTime: time.Now(),
		Findings: map[heuristics.Category][]heuristics.Finding{},
	}
}

// TotalFindings counts findings across all categories.
func (r *Report) TotalFindings() int {
	n := 0
	for _, fs := range r.Findings {
		n += len(fs)
	}
	return n
}

// TotalEvents counts classified events across all kinds.
func (r *Report) TotalEvents() int {
	if r.LogScan == nil {
		return 0
	}
	n := 0
	for _, evs := range r.LogScan.Events {
		n += len(evs)
	}
	return n
}
