package integrity

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureDelete(t *testing.T) {
	t.Run("removes the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.pdf")
		require.NoError(t, os.WriteFile(path, []byte("secret page content"), 0o600))

		require.NoError(t, SecureDelete(path))
		assert.NoFileExists(t, path)
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		assert.NoError(t, SecureDelete(filepath.Join(t.TempDir(), "gone.pdf")))
	})

	t.Run("empty path is a no-op", func(t *testing.T) {
		assert.NoError(t, SecureDelete(""))
	})
}

func TestArtifactWipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("secret"), 0o600))
	artifact := NewArtifact(path)
	assert.Equal(t, path, artifact.Path())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, artifact.Wipe())
		}()
	}
	wg.Wait()

	assert.True(t, artifact.Wiped())
	assert.Empty(t, artifact.Path())
	assert.NoFileExists(t, path)

	var nilArtifact *Artifact
	assert.NoError(t, nilArtifact.Wipe())
	assert.False(t, nilArtifact.Wiped())
}
