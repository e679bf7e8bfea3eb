// File: pool/config_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	raw := "code: double\nmin_workers: 2\nmax_workers: 4\nidle_timeout_seconds: 1.5\nexit_on_die: true\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := ConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "double", cfg.Code)
	assert.Equal(t, 2, cfg.MinWorkers)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 1500*time.Millisecond, cfg.IdleTimeout)
	assert.True(t, cfg.ExitOnDie)
}

func TestConfigFromFile_Errors(t *testing.T) {
	_, err := ConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))
	_, err = ConfigFromFile(path)
	assert.Error(t, err)
}
