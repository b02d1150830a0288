// Package httpclient implements the FIFO, per-verb HTTP request pipeline
// described in spec.md §4.4: one enqueue method per verb, a synchronous
// execute() that drains the queue, and abortAll() for cooperative
// cancellation. The transport itself (net/http) is a collaborator whose
// contract spec.md specifies but does not own (§1).
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/auriora/tusclient/internal/logging"
	"github.com/auriora/tusclient/internal/tuserr"
	"github.com/auriora/tusclient/pkg/retry"
)

// rejectedURLSuffixes are the characters spec.md §4.4 calls out as URL
// hygiene violations.
var rejectedURLSuffixes = []string{"<", ">", "#", "%", "{", "}", "|", "\\", "^", "~", "[", "]", "`"}

// connectTimeout is the fixed connection timeout spec.md §5 names.
const connectTimeout = 10 * time.Second

// Client is a single session's serial HTTP request pipeline. It is owned
// outright by one UploadSession (spec.md §9) and is not safe to share
// across sessions.
type Client struct {
	mu      sync.Mutex
	queue   []Request
	abort   bool
	token   string
	hc      *http.Client
	log     logging.Logger
}

// New constructs a Client. insecureSkipVerify defaults to false — spec.md
// §9's open question resolves in favor of verifying by default, unlike the
// original source, and exposes the toggle instead of hardcoding it off.
func New(log logging.Logger, insecureSkipVerify bool) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext:         dialer.DialContext,
	}
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per spec.md §9 open question
	}
	return &Client{
		hc: &http.Client{
			Transport: transport,
			Timeout:   0, // no end-to-end timeout beyond the transport's, per spec.md §5
		},
		log: log,
	}
}

func validateURL(url string) error {
	for _, suffix := range rejectedURLSuffixes {
		if strings.HasSuffix(url, suffix) {
			return tuserr.NewPreconditionError(fmt.Sprintf("url ends with rejected character %q", suffix), nil)
		}
	}
	return nil
}

func (c *Client) enqueue(method Method, req Request) error {
	if req.Method != method {
		return tuserr.NewPreconditionError(
			fmt.Sprintf("method mismatch: enqueued via %s but request.Method=%s", method, req.Method), nil)
	}
	if err := validateURL(req.URL); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abort = false
	c.queue = append(c.queue, req)
	return nil
}

// Get enqueues a GET request. Returns a precondition error if req.Method
// isn't MethodGet or the URL fails hygiene validation.
func (c *Client) Get(req Request) error { return c.enqueue(MethodGet, req) }

// Post enqueues a POST request.
func (c *Client) Post(req Request) error { return c.enqueue(MethodPost, req) }

// Put enqueues a PUT request.
func (c *Client) Put(req Request) error { return c.enqueue(MethodPut, req) }

// Patch enqueues a PATCH request.
func (c *Client) Patch(req Request) error { return c.enqueue(MethodPatch, req) }

// Delete enqueues a DELETE request.
func (c *Client) Delete(req Request) error { return c.enqueue(MethodDelete, req) }

// Head enqueues a HEAD request.
func (c *Client) Head(req Request) error { return c.enqueue(MethodHead, req) }

// Options enqueues an OPTIONS request.
func (c *Client) Options(req Request) error { return c.enqueue(MethodOptions, req) }

// SetAuthorization stores a bearer credential attached as
// "Authorization: Bearer <token>" to every request sent from here on.
func (c *Client) SetAuthorization(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// IsAuthenticated reports whether a non-empty credential is set.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// AbortAll clears the queue and signals the in-flight Execute loop to
// terminate at its next iteration.
func (c *Client) AbortAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = nil
	c.abort = true
}

// Execute drains the queue synchronously: for each request it performs the
// I/O, invokes the success or error callback, then moves to the next.
// abortAll() observed mid-drain stops the loop before its next dequeue, per
// spec.md §4.4 and §5's cooperative-cancellation model. The mutex is held
// only around queue mutation, never around network I/O.
func (c *Client) Execute() {
	for {
		req, ok := c.dequeue()
		if !ok {
			return
		}
		c.send(req)
	}
}

func (c *Client) dequeue() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abort || len(c.queue) == 0 {
		return Request{}, false
	}
	req := c.queue[0]
	c.queue = c.queue[1:]
	return req, true
}

// send performs one request, retrying socket-level (not protocol-level)
// failures with backoff: a connection reset or timed-out dial shouldn't
// surface as a terminal error to the engine when a moment's wait would let it
// through, per spec.md §5's connection-timeout note. A completed response,
// whatever its status code, is never retried here; that disposition belongs to the engine's
// own per-status handling (see session.uploadChunk's 409 path).
func (c *Client) send(req Request) {
	var resp *http.Response
	var body []byte

	retryCfg := retry.DefaultConfig(c.log)
	err := retry.Do(context.Background(), func() error {
		httpReq, buildErr := c.buildRequest(context.Background(), req)
		if buildErr != nil {
			return buildErr
		}

		r, doErr := c.hc.Do(httpReq)
		if doErr != nil {
			return tuserr.NewTransportError("http request failed", doErr)
		}
		defer r.Body.Close()

		b, readErr := io.ReadAll(r.Body)
		if readErr != nil {
			return tuserr.NewTransportError("reading response body failed", readErr)
		}

		resp, body = r, b
		return nil
	}, retryCfg)

	if err != nil {
		if req.OnError != nil {
			req.OnError(err)
		}
		return
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	if req.OnSuccess != nil {
		req.OnSuccess(&Response{
			StatusLine: fmt.Sprintf("HTTP/%d.%d %s", resp.ProtoMajor, resp.ProtoMinor, resp.Status),
			Headers:    headers,
			Body:       body,
		})
	}
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	var bodyReader io.Reader
	hasBody := req.Method == MethodPost || req.Method == MethodPut || req.Method == MethodPatch
	if hasBody {
		bodyReader = strings.NewReader(string(req.Body))
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, bodyReader)
	if err != nil {
		return nil, tuserr.NewPreconditionError("build http request", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if hasBody {
		httpReq.Header.Set("Content-Length", strconv.Itoa(len(req.Body)))
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return httpReq, nil
}
