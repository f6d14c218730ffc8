// Package collyfetcher implements counter.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Fixed network policy. None of it is user-tunable.
const (
	RequestTimeout = 15 * time.Second
	ConnectTimeout = 10 * time.Second
	MaxRedirects   = 5

	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"
)

var (
	// ErrTooManyRedirects is returned once the redirect budget is spent.
	ErrTooManyRedirects = fmt.Errorf("stopped after %d redirects", MaxRedirects)
	// ErrUnexpectedStatus is returned for any status other than 200.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrEmptyBody is returned when a 200 response carries no body.
	ErrEmptyBody = errors.New("empty body")
)

// Fetcher retrieves page bodies with a cloned Colly collector per call.
type Fetcher struct {
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	status int
	body   []byte
}

// New builds a Fetcher with the fixed timeouts, redirect budget and headers.
func New() *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		// Counting runs over the whole document, so the body is never truncated.
		colly.MaxBodySize(0),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(RequestTimeout)
	c.SetRedirectHandler(limitRedirects)

	return &Fetcher{baseCollector: c}
}

// Fetch performs a single GET. It succeeds only for a 200 response with a
// non-empty body; the body is already decoded from its content-encoding.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		result   page
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return nil, err
	}
	if result.status != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, result.status)
	}
	if len(result.body) == 0 {
		return nil, ErrEmptyBody
	}
	return result.body, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		r.Headers.Set("Accept-Language", acceptLanguage)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("%w: %d: %w", ErrUnexpectedStatus, r.StatusCode, err)
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func limitRedirects(_ *http.Request, via []*http.Request) error {
	if len(via) > MaxRedirects {
		return ErrTooManyRedirects
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
