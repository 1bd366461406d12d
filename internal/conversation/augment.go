package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oarmstrong95/slack-bot/common/logger"
	"github.com/oarmstrong95/slack-bot/internal/metrics"
)

// Extractor fetches a URL and returns its readable text.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, url string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

type AugmenterConfig struct {
	PerURLTimeout time.Duration
	Budget        time.Duration // shared by every fetch of one turn, see WithBudget
	Concurrency   int
}

// Augmenter inlines the content of referenced URLs into a message.
type Augmenter struct {
	extractor Extractor
	cfg       AugmenterConfig
}

func NewAugmenter(extractor Extractor, cfg AugmenterConfig) *Augmenter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Augmenter{extractor: extractor, cfg: cfg}
}

// WithBudget returns a context bounded by the overall augmentation budget.
// Every Augment call made with it shares one deadline, so a thread with many
// URL messages cannot exceed the budget in total.
func (a *Augmenter) WithBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.Budget)
}

// Augment removes each <url> token from message and appends one block per URL:
//
//	{message without urls}\n Contents of {url} : \n """ {content} """
//
// Blocks follow the order of urls. A failed or timed-out fetch contributes an
// empty block; Augment itself never fails. Only the per-URL timeout is applied
// here; callers bound the whole turn with WithBudget.
func (a *Augmenter) Augment(ctx context.Context, message string, urls []string) string {
	contents := a.fetchAll(ctx, urls)

	var blocks strings.Builder
	for _, url := range urls {
		message = strings.ReplaceAll(message, "<"+url+">", "")
		blocks.WriteString(" Contents of " + url + " : \n \"\"\" " + contents[url] + " \"\"\"")
	}

	return message + "\n" + blocks.String()
}

// fetchAll fetches each distinct URL once, in parallel, bounded by the
// per-URL timeout and whatever deadline ctx already carries.
func (a *Augmenter) fetchAll(ctx context.Context, urls []string) map[string]string {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, url := range urls {
		if !seen[url] {
			seen[url] = true
			unique = append(unique, url)
		}
	}

	results := make([]string, len(unique))

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for i, url := range unique {
		g.Go(func() error {
			results[i] = a.fetchOne(ctx, url)
			return nil
		})
	}
	_ = g.Wait()

	contents := make(map[string]string, len(unique))
	for i, url := range unique {
		contents[url] = results[i]
	}
	return contents
}

func (a *Augmenter) fetchOne(ctx context.Context, url string) string {
	if a.cfg.PerURLTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.PerURLTimeout)
		defer cancel()
	}

	start := time.Now()
	content, err := a.extract(ctx, url)
	metrics.URLFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.URLFetches.WithLabelValues("error").Inc()
		slog.DebugContext(ctx, "url content unavailable, continuing without it",
			"url", logger.Truncate(url, 200),
			"error", err)
		return ""
	}

	metrics.URLFetches.WithLabelValues("ok").Inc()
	return content
}

// extract returns as soon as ctx is done, even if the extractor ignores ctx.
func (a *Augmenter) extract(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		content string
		err     error
	}
	// Buffered so an abandoned extractor can still send and exit.
	done := make(chan result, 1)
	go func() {
		content, err := a.extractor.Extract(ctx, url)
		done <- result{content: content, err: err}
	}()

	select {
	case r := <-done:
		return r.content, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
