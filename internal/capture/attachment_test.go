package capture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ambient/internal/apperr"
)

func TestLoadAttachment(t *testing.T) {
	x := newIndex(t)
	c := register(t, x, "s1")

	att, err := LoadAttachment(c.FilePath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(c.FilePath), att.Name)
	assert.Equal(t, "image/png", att.MIMEType)
	assert.Equal(t, int64(len(pngStub)), att.Size)
	assert.Equal(t, digest(pngStub), att.Checksum)
	assert.Len(t, att.Checksum, 64)
	assert.Equal(t, pngStub, att.Data)
}

func TestLoadAttachmentSniffsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.unknownext")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644))

	att, err := LoadAttachment(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", att.MIMEType)
}

func TestLoadAttachmentMissingFile(t *testing.T) {
	_, err := LoadAttachment(filepath.Join(t.TempDir(), "gone.png"))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
