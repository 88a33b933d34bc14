package imagepkg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Response is a fetched response whose body has not been read yet.
// The receiver owns Body and must close it.
type Response struct {
	Status        int
	Header        http.Header
	ContentLength int64 // -1 when the server did not declare one
	Body          io.ReadCloser
}

// Fetcher issues exactly one bounded GET per call.
type Fetcher struct {
	client *resty.Client
	log    *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	transport http.RoundTripper
	log       *zap.Logger
}

// WithTransport sets the round tripper used for the request.
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(o *fetcherOptions) {
		o.transport = rt
	}
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *zap.Logger) FetcherOption {
	return func(o *fetcherOptions) {
		o.log = l
	}
}

// NewFetcher builds a Fetcher enforcing p's timeout and user agent.
func NewFetcher(p Policy, opts ...FetcherOption) *Fetcher {
	p = p.withDefaults()
	o := fetcherOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	client := resty.New().
		SetTimeout(p.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", p.UserAgent).
		SetLogger(o.log.Sugar())

	switch {
	case o.transport != nil:
		client.SetTransport(o.transport)
	case p.BlockPrivateNetworks:
		client.SetTransport(publicOnlyTransport())
	}

	return &Fetcher{client: client, log: o.log}
}

// Fetch sends the GET and returns the response with its body unread.
// Non-2xx statuses are turned into KindHTTPStatus and the body is closed.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL) (*Response, error) {
	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		f.log.Debug("fetch failed", zap.String("url", u.Redacted()), zap.Error(err))
		return nil, classifyTransportError(err)
	}

	status := resp.StatusCode()
	f.log.Debug("fetch response",
		zap.String("url", u.Redacted()),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)),
	)

	if status < 200 || status >= 300 {
		resp.RawBody().Close()
		return nil, &Error{Kind: KindHTTPStatus, Status: status}
	}

	contentLength := int64(-1)
	if resp.RawResponse != nil {
		contentLength = resp.RawResponse.ContentLength
	}
	return &Response{
		Status:        status,
		Header:        resp.Header(),
		ContentLength: contentLength,
		Body:          resp.RawBody(),
	}, nil
}

func classifyTransportError(err error) *Error {
	if isTimeout(err) {
		return newError(KindTimeout, err)
	}
	return newError(KindNetwork, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// publicOnlyTransport refuses connections whose peer is a loopback,
// private or link-local address. The check runs after connect so DNS
// answers can't be swapped between validation and dial.
func publicOnlyTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		ip := net.ParseIP(host)
		if ip == nil {
			conn.Close()
			return nil, fmt.Errorf("failed to parse remote IP for %q", addr)
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			conn.Close()
			return nil, fmt.Errorf("access to private IP %s is denied", ip)
		}
		return conn, nil
	}
	return t
}
