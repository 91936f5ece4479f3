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

package chttp

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/couchkit/couchdb/chttp"

// Option configures a Client.
type Option func(*clientOptions) error

type clientOptions struct {
	client         *http.Client
	userAgents     []string
	auth           Authenticator
	logger         zerolog.Logger
	throttle       *throttleConfig
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	propagator     propagation.TextMapPropagator
}

type throttleConfig struct {
	rps   int
	burst int
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		logger:         zerolog.Nop(),
		tracerProvider: otel.GetTracerProvider(),
		propagator:     otel.GetTextMapPropagator(),
	}
}

// httpClient returns a copy of the configured *http.Client, so that the
// caller's client is never modified.
func (o *clientOptions) httpClient() *http.Client {
	if o.client == nil {
		return &http.Client{}
	}
	hc := *o.client
	return &hc
}

// transport stacks the optional round trippers on top of the base
// transport. Authentication, when configured, wraps the result later.
func (o *clientOptions) transport(c *Client) (http.RoundTripper, error) {
	transport := c.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.registerer != nil {
		m, err := newMetrics(o.registerer)
		if err != nil {
			return nil, errors.Wrap(err, "registering metrics")
		}
		transport = m.instrument(transport)
	}
	if o.throttle != nil {
		rt, err := newThrottle(o.throttle.rps, o.throttle.burst, c.logger, transport)
		if err != nil {
			return nil, errors.Wrap(err, "configuring throttle")
		}
		transport = rt
	}
	return transport, nil
}

// WithHTTPClient sets the *http.Client used for requests. The client is
// copied; its Transport is used as the base transport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) error {
		if client == nil {
			return errors.New("nil http client")
		}
		o.client = client
		return nil
	}
}

// WithUserAgent appends a product token to the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) error {
		o.userAgents = append(o.userAgents, ua)
		return nil
	}
}

// WithAuth sets the authentication mechanism. It takes precedence over
// credentials in the DSN.
func WithAuth(auth Authenticator) Option {
	return func(o *clientOptions) error {
		o.auth = auth
		return nil
	}
}

// WithLogger sets the logger used to report requests. Requests are logged at
// debug level, transport failures at warn level.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) error {
		o.logger = logger
		return nil
	}
}

// WithThrottle limits outbound requests to rps requests per second, with
// bursts of up to burst requests.
func WithThrottle(rps, burst int) Option {
	return func(o *clientOptions) error {
		if rps <= 0 || burst <= 0 {
			return errors.Wrapf(ErrMustNotBeZero, "rps[%d] and burst[%d]", rps, burst)
		}
		o.throttle = &throttleConfig{rps: rps, burst: burst}
		return nil
	}
}

// WithMetrics registers request metrics with reg and records every request
// made by the client.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *clientOptions) error {
		o.registerer = reg
		return nil
	}
}

// WithTracerProvider sets the provider of the tracer used to create a client
// span per request. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) error {
		o.tracerProvider = tp
		return nil
	}
}

// WithPropagator sets the propagator used to inject trace context into
// request headers. Defaults to the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *clientOptions) error {
		o.propagator = p
		return nil
	}
}
