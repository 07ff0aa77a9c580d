// Package download fetches model files over HTTP.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"llmhost/internal/common/fsutil"
)

const (
	defaultAttempts      = 3
	defaultBackoff       = 500 * time.Millisecond
	defaultHeaderTimeout = 30 * time.Second
	maxRedirects         = 5
	userAgent            = "llmhost-download"
)

// Progress reports bytes written so far. Total is -1 when the server does not
// announce a length.
type Progress struct {
	Loaded int64
	Total  int64
}

// Percent returns completion in [0,100], or -1 when Total is unknown.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	return int(p.Loaded * 100 / p.Total)
}

// Options tunes Download. Zero values select defaults.
type Options struct {
	Client *http.Client
	// Attempts is the total number of tries for transient failures.
	Attempts uint64
	// Backoff is the first retry delay; later delays double.
	Backoff    time.Duration
	OnProgress func(Progress)
	Logger     *zerolog.Logger
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func defaultClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = defaultHeaderTimeout
	return &http.Client{
		Transport: tr,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Download writes the body of url to dest and returns the number of bytes
// written. The body goes to a temporary file next to dest which is renamed on
// success and removed on failure, so dest never holds a partial file. Network
// errors, 429 and 5xx responses are retried with exponential backoff.
func Download(ctx context.Context, url, dest string, opts Options) (int64, error) {
	if url == "" {
		return 0, errors.New("download: no URL provided")
	}
	if dest == "" {
		return 0, errors.New("download: no output path provided")
	}
	dest, err := fsutil.ExpandHome(dest)
	if err != nil {
		return 0, err
	}
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}
	if err := fsutil.EnsureParentDir(dest); err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	client := opts.Client
	if client == nil {
		client = defaultClient()
	}
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	var (
		written int64
		try     int
	)
	b := retry.WithMaxRetries(attempts-1, retry.NewExponential(backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		try++
		n, err := fetch(ctx, client, url, dest, opts.OnProgress)
		if err == nil {
			written = n
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !retryable(se.Status) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Int("attempt", try).Str("url", url).Msg("download attempt failed")
		return retry.RetryableError(err)
	})
	if err != nil {
		return 0, fmt.Errorf("download failed after %d attempt(s): %w", try, err)
	}
	log.Info().Str("path", dest).Int64("bytes", written).Msg("download complete")
	return written, nil
}

func fetch(ctx context.Context, client *http.Client, url, dest string, onProgress func(Progress)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{URL: url, Status: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	if onProgress != nil {
		w = &progressWriter{w: tmp, total: resp.ContentLength, fn: onProgress}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return 0, fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

type progressWriter struct {
	w      io.Writer
	loaded int64
	total  int64
	fn     func(Progress)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.loaded += int64(n)
	p.fn(Progress{Loaded: p.loaded, Total: p.total})
	return n, err
}
