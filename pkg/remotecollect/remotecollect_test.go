package remotecollect

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepInterval(t *testing.T) {
	cases := []struct {
		nodes int
		want  time.Duration
	}{
		{1, 2 * time.Second},
		{10, 2 * time.Second},
		{11, 3 * time.Second},
		{50, 3 * time.Second},
		{51, 4 * time.Second},
		{100, 4 * time.Second},
		{101, 5 * time.Second},
		{200, 5 * time.Second},
		{201, 6 * time.Second},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, stepInterval(c.nodes))
	}
}

func TestCollectorTickInterval(t *testing.T) {
	c := &Collector{urls: make([]string, 5), interval: 0}
	assert.Equal(t, 2*time.Second, c.tickInterval())

	c.interval = 7 * time.Second
	assert.Equal(t, 7*time.Second, c.tickInterval())
}

func TestHosts(t *testing.T) {
	urls, err := Hosts([]string{"a:9090"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:9090/metrics"}, urls)

	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("b:9090\n"), 0o600))

	urls, err = Hosts([]string{"a:9090"}, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:9090/metrics", "http://b:9090/metrics"}, urls)
}

func TestHostsMissingFile(t *testing.T) {
	_, err := Hosts(nil, "/nonexistent/hosts.txt")
	require.Error(t, err)
}
