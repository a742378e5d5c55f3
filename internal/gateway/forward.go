package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"gatewaycore/internal/domain"
)

// forward sends the request to route's upstream, applying route.Retries
// with a short fixed backoff on transport errors and 5xx responses only
// (§4.1 step 5), and records the final outcome against the breaker. It
// returns the HTTP status code ultimately written to w.
func (p *Pipeline) forward(w http.ResponseWriter, r *http.Request, route *domain.Route, remainder, requestID, clientIP string) int {
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	attempts := route.Retries + 1

	// A retryable route needs to resend the same body on every attempt, so
	// buffer it once up front; a non-retried route streams straight through
	// with no buffering, per §4.1's edge case.
	bodyFactory, err := newBodyFactory(r.Body, attempts > 1)
	if err != nil {
		return p.recordForwardFailure(w, route, nil, err)
	}

	var lastErr error
	var lastResp *http.Response

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(fixedBackoff)
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		resp, err := p.doUpstreamCall(ctx, r, route, remainder, requestID, clientIP, bodyFactory())
		cancel()

		if err == nil && resp.StatusCode < 500 {
			p.Breaker.RecordSuccess(route.ID)
			return passThrough(w, resp)
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastErr = err
		lastResp = resp
	}

	return p.recordForwardFailure(w, route, lastResp, lastErr)
}

const fixedBackoff = 100 * time.Millisecond

// newBodyFactory returns a function producing a fresh reader over body's
// contents on every call. When buffer is false (no retries configured),
// body is streamed through as-is and the factory is only ever called once.
func newBodyFactory(body io.ReadCloser, buffer bool) (func() io.ReadCloser, error) {
	if !buffer || body == nil {
		used := false
		return func() io.ReadCloser {
			if used || body == nil {
				return http.NoBody
			}
			used = true
			return body
		}, nil
	}

	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return nil, err
	}
	return func() io.ReadCloser {
		return io.NopCloser(bytes.NewReader(data))
	}, nil
}

func (p *Pipeline) doUpstreamCall(ctx context.Context, r *http.Request, route *domain.Route, remainder, requestID, clientIP string, body io.ReadCloser) (*http.Response, error) {
	target := strings.TrimRight(route.Upstream, "/") + remainder
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, err
	}
	upstreamReq.ContentLength = r.ContentLength
	upstreamReq.Header = r.Header.Clone()
	upstreamReq.Header.Set("X-Request-Id", requestID)
	if existing := upstreamReq.Header.Get("X-Forwarded-For"); existing != "" {
		upstreamReq.Header.Set("X-Forwarded-For", existing+", "+clientIP)
	} else {
		upstreamReq.Header.Set("X-Forwarded-For", clientIP)
	}

	transport := p.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := &http.Client{Transport: transport}
	return client.Do(upstreamReq)
}

// recordForwardFailure classifies the final failed attempt, records it
// against the breaker, and writes the corresponding synthesized response.
func (p *Pipeline) recordForwardFailure(w http.ResponseWriter, route *domain.Route, resp *http.Response, err error) int {
	switch {
	case err != nil && isTimeoutError(err):
		p.Breaker.RecordFailure(route.ID, domain.ErrorKindTimeout, err)
		writeJSON(w, 504, errorBody{Error: "Gateway Timeout", Reason: "upstream did not respond in time"})
		return 504
	case err != nil:
		p.Breaker.RecordFailure(route.ID, domain.ErrorKindTransport, err)
		writeJSON(w, 502, errorBody{Error: "Bad Gateway", Reason: "upstream request failed"})
		return 502
	default:
		p.Breaker.RecordFailure(route.ID, domain.ErrorKindStatus5xx, nil)
		if resp != nil {
			resp.Body.Close()
		}
		writeJSON(w, 502, errorBody{Error: "Bad Gateway", Reason: "upstream returned a server error"})
		return 502
	}
}

func passThrough(w http.ResponseWriter, resp *http.Response) int {
	defer resp.Body.Close()
	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return resp.StatusCode
}

func isTimeoutError(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}
