package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workbench.log")
	log := New(path, true)
	log.Info("upload accepted", zap.String("task_id", "t1"))
	log.Debug("dropped below info")
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"message":"upload accepted"`)
	assert.Contains(t, lines[0], `"task_id":"t1"`)
	assert.Contains(t, lines[0], `"level":"INFO"`)
}
