package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// PageResult is the raw outcome of one profile fetch. Body is already decoded
// to UTF-8.
type PageResult struct {
	StatusCode int
	Body       string
}

// Fetcher retrieves one seller profile page per call.
type Fetcher interface {
	FetchProfile(ctx context.Context, sellerID int64) (*PageResult, error)
}

// Options configures a PageFetcher. Transport is overridable so tests can
// plug in a mock.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgents     []string
	AcceptLanguage string
	Transport      http.RoundTripper
}

// PageFetcher fetches profile pages over HTTP with a rotating user agent.
type PageFetcher struct {
	baseURL        string
	client         *http.Client
	userAgents     []string
	acceptLanguage string
	logger         zerolog.Logger

	requestCount uint64
}

func NewPageFetcher(opts Options, logger zerolog.Logger) (*PageFetcher, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	acceptLanguage := opts.AcceptLanguage
	if acceptLanguage == "" {
		acceptLanguage = "nl-NL,nl;q=0.9,en;q=0.8"
	}

	return &PageFetcher{
		baseURL: strings.TrimRight(base, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		userAgents:     opts.UserAgents,
		acceptLanguage: acceptLanguage,
		logger:         logger.With().Str("component", "fetcher").Logger(),
	}, nil
}

// FetchProfile performs one GET for the seller's profile page. Transport and
// status failures come back as the typed error kinds in this package.
func (f *PageFetcher) FetchProfile(ctx context.Context, sellerID int64) (*PageResult, error) {
	target := f.profileURL(sellerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.acceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		classified := classifyTransportError(err)
		f.logger.Debug().Int64("seller_id", sellerID).Str("category", TypeLabel(classified)).Err(err).Msg("fetch failed")
		return nil, classified
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound{Err: fmt.Errorf("http status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited{Err: fmt.Errorf("http status %d", resp.StatusCode)}
	case resp.StatusCode >= http.StatusBadRequest:
		f.logger.Warn().Int64("seller_id", sellerID).Int("status", resp.StatusCode).Msg("non-success response")
		return nil, ErrHTTPStatus{StatusCode: resp.StatusCode}
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	f.logger.Debug().Int64("seller_id", sellerID).Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("fetched profile")
	return &PageResult{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

func (f *PageFetcher) profileURL(sellerID int64) string {
	return f.baseURL + "/sellers/" + strconv.FormatInt(sellerID, 10)
}

func (f *PageFetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return defaultUserAgent
	}
	n := atomic.AddUint64(&f.requestCount, 1)
	return f.userAgents[(n-1)%uint64(len(f.userAgents))]
}
