package capture

import (
	"fmt"
	"net/http"
	"strings"
)

// MaxImageBytes caps image payloads accepted from outside the process.
const MaxImageBytes = 10 << 20

var imageExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// DetectImage sniffs data and returns its MIME type and file extension.
// Only raster formats the index stores are accepted.
func DetectImage(data []byte) (mimeType, ext string, err error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("capture: empty image")
	}
	if len(data) > MaxImageBytes {
		return "", "", fmt.Errorf("capture: image too large: %d bytes (max %d)", len(data), MaxImageBytes)
	}
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	ext, ok := imageExt[detected]
	if !ok {
		return "", "", fmt.Errorf("capture: unsupported content type %s", detected)
	}
	return detected, ext, nil
}
