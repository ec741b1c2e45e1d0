package heuristics

import (
	"regexp"
	"strings"
)

// Category tags one heuristic pass. A line may appear in several categories.
type Category string

const (
	CategoryInitFunctions     Category = "init_functions"
	CategoryUnprotectedInits  Category = "unprotected_inits"
	CategoryRoleSetters       Category = "unprotected_role_setters"
	CategoryInternalTransfers Category = "internal_transfer_calls"
)

// Categories in report order.
var Categories = []Category{
	CategoryInitFunctions,
	CategoryUnprotectedInits,
	CategoryRoleSetters,
	CategoryInternalTransfers,
}

// Finding is one matched line. Line numbers are 1-indexed; Text is the line
// trimmed for display.
type Finding struct {
	Category Category
	Line     int
	Text     string
}

// RoleSetters are sensitive setter names from one widely-forked stablecoin
// family; a call-shaped occurrence without a nearby onlyOwner is flagged.
var RoleSetters = []string{
	"updateOracle",
	"updateBlacklister",
	"updatePauser",
	"updateMasterMinter",
	"updateRescuer",
}

const guardMarker = "onlyOwner"

// guardWindow is the matched line plus the following lines checked for the
// guard marker (four lines total).
const guardWindow = 4

var (
	initDeclRe       = regexp.MustCompile(`\bfunction\s+initialize\b`)
	internalTransfRe = regexp.MustCompile(`\b_transfer\s*\(`)
	roleSetterRes    = buildRoleSetterRes()
)

func buildRoleSetterRes() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(RoleSetters))
	for _, name := range RoleSetters {
		res[name] = regexp.MustCompile(`\b` + name + `\s*\(`)
	}
	return res
}

// Scan runs the four heuristic passes over concatenated source text.
//
// This is a lexical approximation of "is this function access-controlled":
// it can miss guards applied through other modifier names and can be fooled
// by the marker appearing in a nearby comment. It never fails; malformed
// input just produces no findings.
func Scan(text string) map[Category][]Finding {
	findings := map[Category][]Finding{
		CategoryInitFunctions:     {},
		CategoryUnprotectedInits:  {},
		CategoryRoleSetters:       {},
		CategoryInternalTransfers: {},
	}

	lines := strings.Split(text, "\n")
	for idx, line := range lines {
		num := idx + 1
		display := strings.TrimSpace(line)

		if initDeclRe.MatchString(line) ||
			strings.Contains(line, "initializeV2_1") ||
			strings.Contains(line, "initializeV2(") {
			findings[CategoryInitFunctions] = append(findings[CategoryInitFunctions],
				Finding{Category: CategoryInitFunctions, Line: num, Text: display})

			if !strings.Contains(line, guardMarker) && !guardInWindow(lines, idx) {
				findings[CategoryUnprotectedInits] = append(findings[CategoryUnprotectedInits],
					Finding{Category: CategoryUnprotectedInits, Line: num, Text: display})
			}
		}

		if internalTransfRe.MatchString(line) {
			findings[CategoryInternalTransfers] = append(findings[CategoryInternalTransfers],
				Finding{Category: CategoryInternalTransfers, Line: num, Text: display})
		}

		for _, name := range RoleSetters {
			if roleSetterRes[name].MatchString(line) && !guardInWindow(lines, idx) {
				findings[CategoryRoleSetters] = append(findings[CategoryRoleSetters],
					Finding{Category: CategoryRoleSetters, Line: num, Text: display})
			}
		}
	}

	return findings
}

// guardInWindow reports whether the guard marker appears in lines[start]
// through lines[start+guardWindow-1] (fewer at end of file).
func guardInWindow(lines []string, start int) bool {
	end := start + guardWindow
	if end > len(lines) {
		end = len(lines)
	}
	for _, line := range lines[start:end] {
		if strings.Contains(line, guardMarker) {
			return true
		}
	}
	return false
}
