package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/starford/ambient/internal/apperr"
	"github.com/starford/ambient/internal/models"
)

// LoadAttachment reads a capture file into an Attachment for hand-off to a
// task. The MIME type comes from the extension, or from sniffing the content
// when the extension is unknown.
func LoadAttachment(path string) (models.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Attachment{}, fmt.Errorf("capture: attachment %s: %w", path, apperr.ErrNotFound)
		}
		return models.Attachment{}, fmt.Errorf("capture: attachment %s: %w", path, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return models.Attachment{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Checksum: digest(data),
		Data:     data,
	}, nil
}

// digest is the hex SHA-256 of data, used to spot duplicate attachments.
func digest(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
