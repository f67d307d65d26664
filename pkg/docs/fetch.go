package docs

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/logger"
)

// maxResponseSize caps a single page download
const maxResponseSize = 10 << 20

// statusError is returned for non-2xx responses
type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return "GET " + e.URL + ": " + http.StatusText(e.Code)
}

// response is a successful download
type response struct {
	Status      int
	ContentType string
	Body        []byte
	// URL is the final URL after redirects
	URL string
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// fetch downloads url, retrying transient failures
func (c *Crawler) fetch(ctx context.Context, url string) (*response, error) {
	var resp *response
	err := retry.Do(
		func() error {
			r, err := c.get(ctx, url)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("url", url).WithField("attempt", n+1).Warn("retrying page download")
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Crawler) get(ctx context.Context, url string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(errors.Wrapf(err, "invalid request for %s", url))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html, text/markdown;q=0.9, text/plain;q=0.8")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return nil, &statusError{URL: url, Code: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseSize {
		return nil, retry.Unrecoverable(errors.Errorf("%s exceeds %d bytes", url, maxResponseSize))
	}

	return &response{
		Status:      res.StatusCode,
		ContentType: strings.ToLower(res.Header.Get("Content-Type")),
		Body:        body,
		URL:         res.Request.URL.String(),
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
