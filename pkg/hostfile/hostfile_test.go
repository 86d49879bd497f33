package hostfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")

	content := "# comment\n\nnode1:9090\nhttp://node2:9090\nhttps://node3:9090/metrics\n  node4:9090  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	urls, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://node1:9090/metrics",
		"http://node2:9090/metrics",
		"https://node3:9090/metrics",
		"http://node4:9090/metrics",
	}, urls)
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse("/nonexistent/hosts.txt")
	require.Error(t, err)
}

func TestToMetricsURL(t *testing.T) {
	cases := map[string]string{
		"node1:9090":                   "http://node1:9090/metrics",
		"http://node1:9090":            "http://node1:9090/metrics",
		"http://node1:9090/":           "http://node1:9090/metrics",
		"http://node1:9090/metrics":    "http://node1:9090/metrics",
		"https://node1:9090/metrics":   "https://node1:9090/metrics",
	}

	for in, want := range cases {
		assert.Equal(t, want, ToMetricsURL(in), in)
	}
}
