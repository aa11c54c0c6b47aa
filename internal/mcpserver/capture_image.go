package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ambient/internal/capture"
	"github.com/starford/ambient/internal/models"
)

func (s *Server) captureImage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.captures == nil {
		return mcp.NewToolResultError("capture index unavailable"), nil
	}
	uri, err := req.RequireString("data_uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, declared, err := decodeDataURI(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detected, ext, err := capture.DetectImage(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if declared != detected {
		return mcp.NewToolResultError(fmt.Sprintf("content does not match declared type %s (detected: %s)", declared, detected)), nil
	}

	kind := models.CaptureKind(req.GetString("kind", string(models.KindScreenshot)))
	c, ok := s.captures.RegisterImageData(data, kind, req.GetString("session", ""), detected, ext)
	if !ok {
		return mcp.NewToolResultError("failed to register capture"), nil
	}
	return jsonResult(c)
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing data: prefix")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mimeType := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return data, mimeType, nil
}
