package heuristics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanUnprotectedInitialize(t *testing.T) {
	text := strings.Join([]string{
		"contract Token {",
		"    function initialize() public {",
		"        owner = msg.sender;",
		"    }",
		"}",
	}, "\n")

	findings := Scan(text)

	require.Len(t, findings[CategoryInitFunctions], 1)
	require.Len(t, findings[CategoryUnprotectedInits], 1)
	f := findings[CategoryUnprotectedInits][0]
	assert.Equal(t, 2, f.Line)
	assert.Equal(t, "function initialize() public {", f.Text)
}

func TestScanGuardedInitializeSameLine(t *testing.T) {
	text := "function initialize() public onlyOwner {"

	findings := Scan(text)

	assert.Len(t, findings[CategoryInitFunctions], 1)
	assert.Empty(t, findings[CategoryUnprotectedInits])
}

func TestScanGuardedInitializeNextLine(t *testing.T) {
	text := strings.Join([]string{
		"function initialize()",
		"    public onlyOwner",
		"{",
	}, "\n")

	findings := Scan(text)

	assert.Len(t, findings[CategoryInitFunctions], 1)
	assert.Empty(t, findings[CategoryUnprotectedInits])
}

func TestScanGuardWindowBoundary(t *testing.T) {
	// guard on the fourth window line (match + 3) still counts
	guarded := strings.Join([]string{
		"function initialize() public {",
		"    // 2",
		"    // 3",
		"    onlyOwner();",
	}, "\n")
	// one line further is outside the window
	unguarded := strings.Join([]string{
		"function initialize() public {",
		"    // 2",
		"    // 3",
		"    // 4",
		"    onlyOwner();",
	}, "\n")

	assert.Empty(t, Scan(guarded)[CategoryUnprotectedInits])
	assert.Len(t, Scan(unguarded)[CategoryUnprotectedInits], 1)
}

func TestScanReinitializerSubstrings(t *testing.T) {
	text := strings.Join([]string{
		"res = address(this).call(abi.encodeWithSignature(\"initializeV2(string)\", name));",
		"initializeV2_1(lostAndFound);",
	}, "\n")

	findings := Scan(text)

	assert.Len(t, findings[CategoryInitFunctions], 2)
}

func TestScanInitializerWordBoundary(t *testing.T) {
	// "initializer" must not match the declaration pattern
	findings := Scan("function initializer() public {")

	assert.Empty(t, findings[CategoryInitFunctions])
}

func TestScanRoleSetters(t *testing.T) {
	for _, name := range RoleSetters {
		t.Run(name, func(t *testing.T) {
			unguarded := "function " + name + "(address a) external {"
			guarded := unguarded + "\n    onlyOwner"

			assert.Len(t, Scan(unguarded)[CategoryRoleSetters], 1)
			assert.Empty(t, Scan(guarded)[CategoryRoleSetters])
		})
	}
}

func TestScanRoleSetterGuardPosition(t *testing.T) {
	base := []string{
		"function updatePauser(address p) external {",
		"    // 2",
		"    // 3",
	}

	atFour := strings.Join(append(append([]string{}, base...), "    onlyOwner"), "\n")
	atFive := strings.Join(append(append([]string{}, base...), "    // 4", "    onlyOwner"), "\n")

	assert.Empty(t, Scan(atFour)[CategoryRoleSetters])
	assert.Len(t, Scan(atFive)[CategoryRoleSetters], 1)
}

func TestScanInternalTransferUnconditional(t *testing.T) {
	text := strings.Join([]string{
		"function transfer(address to, uint256 v) external onlyOwner {",
		"    _transfer(msg.sender, to, v);",
		"}",
	}, "\n")

	findings := Scan(text)

	require.Len(t, findings[CategoryInternalTransfers], 1)
	assert.Equal(t, 2, findings[CategoryInternalTransfers][0].Line)
}

func TestScanLineInMultipleCategories(t *testing.T) {
	text := "function initialize() public { _transfer(a, b, c); }"

	findings := Scan(text)

	assert.Len(t, findings[CategoryInitFunctions], 1)
	assert.Len(t, findings[CategoryUnprotectedInits], 1)
	assert.Len(t, findings[CategoryInternalTransfers], 1)
}

func TestScanEmptyInput(t *testing.T) {
	findings := Scan("")

	for _, category := range Categories {
		assert.Empty(t, findings[category])
	}
}
