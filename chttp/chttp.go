// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package chttp provides a minimal HTTP transport for talking to a CouchDB
// server.
package chttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const typeJSON = "application/json"

// HeaderRequestID is the request header used to correlate a request with
// the server's logs.
const HeaderRequestID = "X-Request-ID"

// Requester issues a single HTTP request. The URL is complete, except for
// opts.Query, which the Requester merges into it.
type Requester interface {
	Request(ctx context.Context, method string, u *url.URL, opts *Options) (*http.Response, error)
}

// Client represents a client connection. It embeds an *http.Client.
type Client struct {
	// UserAgents is appended to set the User-Agent header. Typically it should
	// contain pairs of product name and version.
	UserAgents []string

	*http.Client

	rawDSN string
	dsn    *url.URL
	auth   Authenticator
	authMU sync.Mutex

	logger     zerolog.Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

var _ Requester = &Client{}

// New returns a connection to a remote CouchDB server. If credentials are
// included in the URL, CookieAuth is used, unless another Authenticator is
// passed with WithAuth.
func New(dsn string, opts ...Option) (*Client, error) {
	dsnURL, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errors.Wrap(err, "applying client option")
		}
	}
	user := dsnURL.User
	dsnURL.User = nil
	c := &Client{
		UserAgents: o.userAgents,
		Client:     o.httpClient(),
		rawDSN:     dsn,
		dsn:        dsnURL,
		logger:     o.logger,
		tracer:     o.tracerProvider.Tracer(tracerName),
		propagator: o.propagator,
	}
	transport, err := o.transport(c)
	if err != nil {
		return nil, err
	}
	c.Transport = transport
	auth := o.auth
	if auth == nil && user != nil {
		password, _ := user.Password()
		auth = &CookieAuth{
			Username: user.Username(),
			Password: password,
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseDSN(dsn string) (*url.URL, error) {
	if dsn == "" {
		return nil, &kivik.Error{Status: http.StatusBadRequest, Err: errors.New("no URL specified")}
	}
	if !strings.HasPrefix(dsn, "http://") && !strings.HasPrefix(dsn, "https://") {
		dsn = "http://" + dsn
	}
	dsnURL, err := url.Parse(dsn)
	if err != nil {
		return nil, &kivik.Error{Status: http.StatusBadRequest, Err: err}
	}
	if dsnURL.Path == "" {
		dsnURL.Path = "/"
	}
	return dsnURL, nil
}

// DSN returns the unparsed DSN used to connect.
func (c *Client) DSN() string {
	return c.rawDSN
}

// Resource returns a handle for the given path segments, relative to the
// DSN.
func (c *Client) Resource(segments ...string) *Resource {
	return NewResource(c, c.dsn, segments...)
}

// Request satisfies the Requester interface.
func (c *Client) Request(ctx context.Context, method string, u *url.URL, opts *Options) (*http.Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	reqURL := withQuery(u, opts.Query)
	ctx, span := c.tracer.Start(ctx, "couchdb "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", reqURL.Path),
		),
	)
	defer span.End()

	body, getBody, err := opts.body()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, &kivik.Error{Status: http.StatusBadRequest, Err: err}
	}
	if getBody != nil {
		req.GetBody = getBody
	}
	if opts.ContentLength > 0 {
		req.ContentLength = opts.ContentLength
	}
	c.setHeaders(req, opts)
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
		req.Header.Set(HeaderRequestID, requestID)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	ct := ContextClientTrace(ctx)
	if ct != nil {
		ct.httpRequest(req)
	}

	start := time.Now()
	res, err := c.Do(req)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("method", method).
			Str("url", reqURL.Redacted()).
			Str("request_id", requestID).
			Dur("duration", time.Since(start)).
			Msg("couchdb request failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ct != nil {
			ct.httpRequestFailed(req, err)
		}
		return nil, transportError(err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("url", reqURL.Redacted()).
		Str("request_id", requestID).
		Int("status", res.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("couchdb request")
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	if res.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(res.StatusCode))
	}
	if ct != nil {
		ct.httpResponse(res)
		ct.httpResponseBody(res)
	}
	return res, nil
}

// transportError converts an error returned by the http.Client. Errors which
// already carry a status, such as a failed authentication or a request body
// which could not be encoded, keep that status; anything else is a bad
// gateway.
func transportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if _, ok := urlErr.Err.(statusCoder); ok {
			return urlErr.Err
		}
	}
	var coder statusCoder
	if errors.As(err, &coder) {
		return &kivik.Error{Status: coder.HTTPStatus(), Err: err}
	}
	return &kivik.Error{Status: http.StatusBadGateway, Err: err}
}

// DoReq does an HTTP request against a path relative to the DSN. An error is
// returned only on transport failure; HTTP error statuses are left to the
// caller.
func (c *Client) DoReq(ctx context.Context, method, path string, opts *Options) (*http.Response, error) {
	u, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, method, u, opts)
}

// DoJSON combines DoReq and ResponseError, then unmarshals the JSON response
// body into i.
func (c *Client) DoJSON(ctx context.Context, method, path string, opts *Options, i interface{}) (*http.Response, error) {
	u, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return doJSON(ctx, c, method, u, opts, i)
}

// DoError is the same as DoReq(), followed by checking the response for an
// error. The response body is closed.
func (c *Client) DoError(ctx context.Context, method, path string, opts *Options) (*http.Response, error) {
	u, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return doError(ctx, c, method, u, opts)
}

// resolve joins path, which may carry a query string, onto the DSN.
func (c *Client) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, &kivik.Error{Status: http.StatusBadRequest, Err: err}
	}
	u := *c.dsn
	u.Path = joinPath(c.dsn.Path, ref.Path)
	u.RawPath = joinPath(c.dsn.EscapedPath(), ref.EscapedPath())
	u.RawQuery = ref.RawQuery
	return &u, nil
}

func joinPath(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func withQuery(u *url.URL, query url.Values) *url.URL {
	reqURL := *u
	if len(query) == 0 {
		return &reqURL
	}
	q := reqURL.Query()
	for key, values := range query {
		q[key] = append(q[key], values...)
	}
	reqURL.RawQuery = q.Encode()
	return &reqURL
}

func doJSON(ctx context.Context, r Requester, method string, u *url.URL, opts *Options, i interface{}) (*http.Response, error) {
	res, err := r.Request(ctx, method, u, opts)
	if err != nil {
		return res, err
	}
	if err = ResponseError(res); err != nil {
		return res, err
	}
	defer CloseBody(res.Body)
	if err = json.NewDecoder(res.Body).Decode(i); err != nil {
		return res, &kivik.Error{Status: http.StatusBadGateway, Err: err}
	}
	return res, nil
}

func doError(ctx context.Context, r Requester, method string, u *url.URL, opts *Options) (*http.Response, error) {
	res, err := r.Request(ctx, method, u, opts)
	if err != nil {
		return res, err
	}
	if res.Body != nil {
		defer CloseBody(res.Body)
	}
	return res, ResponseError(res)
}

// CloseBody drains and closes an HTTP response body, so that the underlying
// connection may be reused.
func CloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

func (c *Client) setHeaders(req *http.Request, opts *Options) {
	if len(c.UserAgents) > 0 {
		req.Header.Set("User-Agent", strings.Join(c.UserAgents, " "))
	}
	setHeaders(req, opts)
}

func setHeaders(req *http.Request, opts *Options) {
	accept := typeJSON
	contentType := typeJSON
	if opts != nil {
		if opts.Accept != "" {
			accept = opts.Accept
		}
		if opts.ContentType != "" {
			contentType = opts.ContentType
		}
		if opts.FullCommit {
			req.Header.Add("X-Couch-Full-Commit", "true")
		}
		if opts.IfNoneMatch != "" {
			inm := opts.IfNoneMatch
			if inm[0] != '"' {
				inm = `"` + inm + `"`
			}
			req.Header.Set("If-None-Match", inm)
		}
		for key, values := range opts.Header {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
	}
	req.Header.Add("Accept", accept)
	req.Header.Add("Content-Type", contentType)
}
