package artifacts

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveBase64(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	payload := []byte("fake jpeg bytes")
	ref, err := store.SaveBase64("morning", base64.StdEncoding.EncodeToString(payload))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref, "/screenshots/morning_"))
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	data, err := os.ReadFile(filepath.Join(store.Dir(), strings.TrimPrefix(ref, "/screenshots/")))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestSaveBase64Invalid(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveBase64("error", "not base64 !!!")
	assert.Error(t, err)
}

func TestNewStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "shots")
	store, err := NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(store.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
