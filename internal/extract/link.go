package extract

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// fetch downloads rawURL within the loader's time and size limits and returns its text.
// HTML is stripped to the body text; text/plain is returned unchanged.
func (l *Loader) fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: %s", u.Host, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxFetchBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > l.maxFetchBytes {
		return "", fmt.Errorf("response exceeds %d bytes", l.maxFetchBytes)
	}
	if l.logger != nil {
		l.logger.Debug("Fetched link", zap.String("host", u.Host), zap.Int("bytes", len(body)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		return extractPlain(body)
	}
	if mediaType != "" && !strings.Contains(mediaType, "html") && !strings.HasPrefix(mediaType, "text/") {
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
	return StripHTML(string(body)), nil
}
