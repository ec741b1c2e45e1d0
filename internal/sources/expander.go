package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceUnit is one file of a contract's verified source.
type SourceUnit struct {
	Path    string
	Content string
}

type sourceFile struct {
	Content string `json:"content"`
}

type standardInput struct {
	Sources map[string]sourceFile `json:"sources"`
}

// Expand turns a raw explorer SourceCode payload into source units.
//
// The payload may be plain Solidity, a standard-input JSON object with a
// "sources" mapping, or that JSON wrapped in an extra brace pair ({{...}}),
// a long-standing explorer quirk. The unwrap is attempted exactly once so a
// genuinely malformed payload still falls through to the single-file path.
func Expand(payload, contractNameHint string) []SourceUnit {
	if payload == "" {
		return []SourceUnit{}
	}

	// a present "sources" key decides the format, even when the map is
	// empty; only its absence falls through to the single-file path
	if input, ok := parseStandardInput(payload); ok && input.Sources != nil {
		paths := make([]string, 0, len(input.Sources))
		for rel := range input.Sources {
			paths = append(paths, rel)
		}
		sort.Strings(paths)

		units := make([]SourceUnit, 0, len(paths))
		for _, rel := range paths {
			// missing content still yields a unit: an empty file on the
			// explorer side is a signal worth surfacing, not skipping
			units = append(units, SourceUnit{Path: rel, Content: input.Sources[rel].Content})
		}
		return units
	}

	name := strings.TrimSpace(contractNameHint)
	if name == "" {
		name = "Contract"
	}
	return []SourceUnit{{Path: name + ".sol", Content: payload}}
}

func parseStandardInput(payload string) (*standardInput, bool) {
	var input standardInput
	if err := json.Unmarshal([]byte(payload), &input); err == nil {
		return &input, true
	}

	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		unwrapped := trimmed[1 : len(trimmed)-1]
		if err := json.Unmarshal([]byte(unwrapped), &input); err == nil {
			return &input, true
		}
	}

	return nil, false
}

// Concat joins unit contents for line-oriented scanning, in unit order.
func Concat(units []SourceUnit) string {
	parts := make([]string, 0, len(units))
	for _, u := range units {
		parts = append(parts, u.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Materialize writes units under outDir, creating intermediate directories.
// Re-running for the same target overwrites prior files without warning.
func Materialize(outDir string, units []SourceUnit) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create source directory: %w", err)
	}

	root, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(units))
	for _, unit := range units {
		rel := filepath.Clean(strings.TrimLeft(unit.Path, "/\\"))
		dest := filepath.Join(root, rel)
		if !strings.HasPrefix(dest, root+string(filepath.Separator)) {
			return nil, fmt.Errorf("source path escapes output directory: %s", unit.Path)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(dest, []byte(unit.Content), 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		written = append(written, dest)
	}
	return written, nil
}
