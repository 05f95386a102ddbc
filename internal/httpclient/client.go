// Package httpclient is the JSON HTTP client shared by the transcription,
// LLM and geo collaborators.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	"thirdcoast.systems/scanwatch/internal/metrics"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type Options struct {
	// Service labels metrics and errors.
	Service string
	Timeout time.Duration
	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64
	// MaxElapsed bounds retries. Zero means a single attempt.
	MaxElapsed time.Duration
	Header     http.Header
}

type Client struct {
	service    string
	http       *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
	header     http.Header
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Service == "" {
		opts.Service = "http"
	}
	c := &Client{
		service:    opts.Service,
		http:       &http.Client{Timeout: opts.Timeout},
		maxElapsed: opts.MaxElapsed,
		header:     opts.Header.Clone(),
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// GetJSON issues a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.Do(ctx, http.MethodGet, url, nil, "", out)
}

// PostJSON marshals in as the request body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.Do(ctx, http.MethodPost, url, b, "application/json", out)
}

// Do sends body with the given content type and decodes a JSON response
// into out (skipped when out is nil). Transport errors, 429 and 5xx are
// retried; any other non-2xx status is returned as a *StatusError.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, contentType string, out any) error {
	op := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, vs := range c.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.CollaboratorCalls.WithLabelValues(c.service, "transport_error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()
		metrics.CollaboratorCalls.WithLabelValues(c.service, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			se := &StatusError{Service: c.service, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return se
			}
			return backoff.Permanent(se)
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decode response: %w", c.service, err))
		}
		return nil
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if c.maxElapsed > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 250 * time.Millisecond
		eb.MaxElapsedTime = c.maxElapsed
		b = eb
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
