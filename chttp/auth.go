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
	"fmt"
	"net/http"
)

// Authenticator is an interface that provides authentication to a server.
type Authenticator interface {
	Authenticate(*Client) error
}

// authorizer is implemented by authenticators which decorate each outgoing
// request with credentials.
type authorizer interface {
	authorize(*http.Request) error
}

// responseObserver is optionally implemented by an authorizer which needs to
// see the response, such as to discard a rejected session.
type responseObserver interface {
	observe(*http.Request, *http.Response)
}

// authTransport applies an authorizer to a copy of each request before
// passing it on.
type authTransport struct {
	next http.RoundTripper
	auth authorizer
}

var _ http.RoundTripper = &authTransport{}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if err := t.auth.authorize(req); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	res, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if o, ok := t.auth.(responseObserver); ok {
		o.observe(req, res)
	}
	return res, nil
}

// Auth authenticates using the provided Authenticator.
func (c *Client) Auth(a Authenticator) error {
	c.authMU.Lock()
	defer c.authMU.Unlock()
	if err := a.Authenticate(c); err != nil {
		return err
	}
	c.auth = a
	c.logger.Debug().
		Str("auth", fmt.Sprintf("%T", a)).
		Msg("couchdb authentication configured")
	return nil
}

// installAuth stacks auth on top of the client's current transport.
func (c *Client) installAuth(auth authorizer) {
	c.Transport = &authTransport{next: c.baseTransport(), auth: auth}
}

// baseTransport returns the client's current transport, falling back to the
// default transport.
func (c *Client) baseTransport() http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}
