package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const fallbackFileName = "pdf.pdf"

// actingAgentPassword pairs with the bot name for the basic-auth header the
// attribute services behind file URLs expect.
const actingAgentPassword = "actingAgent"

var knownExtensions = []string{".pdf", ".png", ".svg", ".json", ".txt"}

// fetchFile downloads url into a temp file and returns its path plus the
// outgoing file name. The response body is streamed in chunks so attachment
// size never matters for memory; the partial file is removed on any error.
func fetchFile(ctx context.Context, client *http.Client, url, botName string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("build file request: %w", err)
	}
	req.SetBasicAuth(botName, actingAgentPassword)

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("file request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("file fetch: HTTP %d", resp.StatusCode)
	}

	name := fileName(resp.Header.Get("Content-Disposition"), url)

	tmpFile, err := os.CreateTemp("", "botflow-file-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return "", "", fmt.Errorf("file download: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", "", fmt.Errorf("close temp file: %w", err)
	}
	return tmpPath, name, nil
}

// fileName derives the outgoing attachment name from the Content-Disposition
// header when present, else from a recognized extension in the URL, else a
// fixed fallback.
func fileName(disposition, url string) string {
	if marker := `filename="`; strings.Contains(disposition, marker) {
		rest := disposition[strings.Index(disposition, marker)+len(marker):]
		if end := strings.Index(rest, `"`); end > 0 {
			return rest[:end]
		}
	}
	for _, ext := range knownExtensions {
		if strings.Contains(url, ext) {
			parts := strings.Split(url, "/")
			return parts[len(parts)-1]
		}
	}
	return fallbackFileName
}
