package uci

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileSectionsAndOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dcs")
	require.NoError(t, os.WriteFile(path, []byte(`
# a comment
config dcs 'main'
	option interface_name 'wlan0'
	option trigger_csa '1'

config dcs 'ewma'
	option ewma_alpha '50'
`), 0o644))

	sections, err := parseFile(path)
	require.NoError(t, err)

	main := sections["dcs.main"]
	require.NotNil(t, main)
	assert.Equal(t, "wlan0", main.options["interface_name"])
	assert.Equal(t, "1", main.options["trigger_csa"])

	ewma := sections["dcs.ewma"]
	require.NotNil(t, ewma)
	assert.Equal(t, "50", ewma.options["ewma_alpha"])
}

func TestParseFileRejectsOptionOutsideSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dcs")
	require.NoError(t, os.WriteFile(path, []byte("option interface_name 'wlan0'\n"), 0o644))

	_, err := parseFile(path)
	assert.Error(t, err)
}

func TestParseFileRejectsMissingFile(t *testing.T) {
	_, err := parseFile("/nonexistent/path/dcs")
	assert.Error(t, err)
}
