package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrNoContent          = errors.New("no readable content")
)

const userAgent = "Mozilla/5.0 (compatible; slack-relay/1.0)"

type Config struct {
	MaxBodyBytes int64 // response bytes read; the rest is discarded
	MaxChars     int   // runes of extracted text kept
}

// Client fetches web pages and reduces them to readable plain text.
type Client struct {
	http *http.Client
	cfg  Config
}

// New returns a Client using httpClient. When nil, the default client has no
// timeout of its own (callers bound each fetch through ctx) and only connects
// to public addresses. It dials directly: a proxy would hide the real target
// from the address check.
func New(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				DialContext:           guardedDialer().DialContext,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
			},
		}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 20000
	}
	return &Client{http: httpClient, cfg: cfg}
}

// Extract GETs url and returns its main text. Plain text and markdown pass
// through untouched; HTML is reduced to its readable text.
func (c *Client) Extract(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching url: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var text string
	switch mediaType(resp.Header.Get("Content-Type")) {
	case "text/plain", "text/markdown":
		text = strings.TrimSpace(string(body))
	case "text/html", "application/xhtml+xml", "":
		text, err = HTMLToText(string(body))
		if err != nil {
			return "", fmt.Errorf("parsing html: %w", err)
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, resp.Header.Get("Content-Type"))
	}

	if text == "" {
		return "", ErrNoContent
	}

	text = truncate(text, c.cfg.MaxChars)
	slog.DebugContext(ctx, "url content extracted", "chars", utf8.RuneCountInString(text))
	return text, nil
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars]) + " [...truncated...]"
}
