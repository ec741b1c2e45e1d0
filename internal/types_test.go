package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadAddressFileText(t *testing.T) {
	path := writeTemp(t, "targets.txt", `
# known proxies
0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48
0xdAC17F958D2ee523a2206206994597C13D831ec7, usdt mainnet
// trailing comment line

0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48
`)

	got, err := ReadAddressFile(path)
	require.NoError(t, err)

	// case-insensitive dedupe keeps the first spelling
	assert.Equal(t, []string{
		"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"0xdAC17F958D2ee523a2206206994597C13D831ec7",
	}, got)
}

func TestReadAddressFileYAMLList(t *testing.T) {
	path := writeTemp(t, "targets.yaml", `
- "0x1111111111111111111111111111111111111111"
- "0x2222222222222222222222222222222222222222"
`)

	got, err := ReadAddressFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadAddressFileYAMLWrapper(t *testing.T) {
	path := writeTemp(t, "targets.yml", `
targets:
  - "0x1111111111111111111111111111111111111111"
`)

	got, err := ReadAddressFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1111111111111111111111111111111111111111"}, got)
}

func TestReadAddressFileMissing(t *testing.T) {
	_, err := ReadAddressFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
