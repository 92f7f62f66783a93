// Package httpclient wraps a single process-wide *http.Client configured
// for strict TLS, bounded redirects, and a fixed deadline, exposing exactly
// the POST-a-SOAP-body operation sentri's probe pipeline needs.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sentri-project/sentri/internal/soap"
)

// MaxResponseBytes bounds how much of a response body PostSOAP will read
// before truncating it and returning a KindParse error.
const MaxResponseBytes = 8 * 1024 * 1024

// Config configures the shared HTTP client. Zero values of the non-bool
// fields are replaced with the defaults noted per field, following the
// teacher's Options-defaulting convention. The bool fields are used as
// given, so a caller wanting their bracketed default sets them to true.
type Config struct {
	VerifyCertificates bool          // [true]
	MinTLSVersion      uint16        // [tls.VersionTLS12]
	MaxRedirects       int           // [5]
	RequestTimeout     time.Duration // [5000ms]
	PoolIdleTimeout    time.Duration // [90000ms]
	TCPKeepAlive       time.Duration // [60s]
	HTTP2              bool          // [true]
	UserAgent          string        // ["sentri/<version>"]
}

func (c Config) withDefaults() Config {
	if c.MinTLSVersion == 0 {
		c.MinTLSVersion = tls.VersionTLS12
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = 5
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.PoolIdleTimeout == 0 {
		c.PoolIdleTimeout = 90 * time.Second
	}
	if c.TCPKeepAlive == 0 {
		c.TCPKeepAlive = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "sentri/dev"
	}
	return c
}

// Client is the process-wide HTTP probe (C3). Construct one with New and
// share it across every in-flight domain probe.
type Client struct {
	http *http.Client
	cfg  Config
}

// New builds a Client from cfg, defaulting unset non-bool fields. TLS
// certificate verification is on only when cfg.VerifyCertificates is true.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{
		Timeout:   cfg.RequestTimeout,
		KeepAlive: cfg.TCPKeepAlive,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     cfg.PoolIdleTimeout,
		ForceAttemptHTTP2:   cfg.HTTP2,
		TLSClientConfig: &tls.Config{
			MinVersion:         cfg.MinTLSVersion,
			InsecureSkipVerify: !cfg.VerifyCertificates,
		},
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("%w: exceeded %d redirects", ErrRedirectLimit, cfg.MaxRedirects)
			}
			return nil
		},
	}

	return &Client{http: client, cfg: cfg}
}

// PostSOAP issues a SOAP POST to url carrying body, returning the response
// body or a classified error. The response is capped at MaxResponseBytes;
// a longer body is returned truncated to the limit together with a
// KindParse *Error.
func (c *Client) PostSOAP(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, newReader(body))
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+soap.SOAPAction+`"`)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyDoError(err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:       kindForStatus(resp.StatusCode),
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	if len(data) > MaxResponseBytes {
		return data[:MaxResponseBytes], &Error{Kind: KindParse, Message: "response exceeds 8 MiB"}
	}

	return data, nil
}
