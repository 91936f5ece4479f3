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
	"context"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	"golang.org/x/net/publicsuffix"
)

// sessionRenewal is how long before the session cookie expires a new
// session is requested.
const sessionRenewal = time.Minute

// CookieAuth provides CouchDB Cookie auth services as described at
// http://docs.couchdb.org/en/2.0.0/api/server/authn.html#cookie-authentication
//
// A session is requested before the first request, and again whenever the
// session cookie is missing, about to expire, or rejected by the server.
// CookieAuth stores session state, so must not be shared between clients.
type CookieAuth struct {
	Username string `json:"name"`
	Password string `json:"password"`

	client *Client
	mu     sync.Mutex
	// renewAt is the zero time if the server did not say when the session
	// expires.
	renewAt time.Time
}

var (
	_ Authenticator    = &CookieAuth{}
	_ authorizer       = &CookieAuth{}
	_ responseObserver = &CookieAuth{}
)

// Authenticate installs cookie authentication on the client. The session is
// established lazily, on the first request.
func (a *CookieAuth) Authenticate(c *Client) error {
	a.client = c
	if c.Jar == nil {
		// cookiejar.New never returns an error
		c.Jar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	}
	c.installAuth(a)
	return nil
}

// Cookie returns the current session cookie if found, or nil if not.
func (a *CookieAuth) Cookie() *http.Cookie {
	if a.client == nil || a.client.Jar == nil {
		return nil
	}
	return sessionCookie(a.client.Jar.Cookies(a.client.dsn))
}

func sessionCookie(cookies []*http.Cookie) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == kivik.SessionCookieName {
			return cookie
		}
	}
	return nil
}

type sessionRequestKey struct{}

func isSessionRequest(req *http.Request) bool {
	v, _ := req.Context().Value(sessionRequestKey{}).(bool)
	return v
}

func (a *CookieAuth) authorize(req *http.Request) error {
	if isSessionRequest(req) {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.needsSession(req) {
		return nil
	}
	if err := a.startSession(req.Context()); err != nil {
		return err
	}
	cookies := req.Cookies()
	req.Header.Del("Cookie")
	for _, cookie := range cookies {
		if cookie.Name != kivik.SessionCookieName {
			req.AddCookie(cookie)
		}
	}
	if cookie := a.Cookie(); cookie != nil {
		req.AddCookie(cookie)
	}
	return nil
}

// needsSession reports whether req lacks a session cookie, or the session is
// about to expire.
func (a *CookieAuth) needsSession(req *http.Request) bool {
	if _, err := req.Cookie(kivik.SessionCookieName); err != nil {
		return true
	}
	return !a.renewAt.IsZero() && time.Now().After(a.renewAt)
}

func (a *CookieAuth) startSession(ctx context.Context) error {
	ctx = context.WithValue(ctx, sessionRequestKey{}, true)
	res, err := a.client.DoError(ctx, http.MethodPost, "/_session", &Options{
		GetBody: BodyEncoder(a),
	})
	if err != nil {
		a.client.logger.Warn().
			Err(err).
			Str("user", a.Username).
			Msg("couchdb session request failed")
		return err
	}
	a.renewAt = time.Time{}
	if cookie := sessionCookie(res.Cookies()); cookie != nil {
		switch {
		case cookie.MaxAge > 0:
			a.renewAt = time.Now().Add(time.Duration(cookie.MaxAge)*time.Second - sessionRenewal)
		case !cookie.Expires.IsZero():
			a.renewAt = cookie.Expires.Add(-sessionRenewal)
		}
	}
	a.client.logger.Debug().
		Str("user", a.Username).
		Time("renew_at", a.renewAt).
		Msg("couchdb session started")
	return nil
}

// observe drops the session cookie when the server rejects it, so that the
// next request starts a new session.
func (a *CookieAuth) observe(req *http.Request, res *http.Response) {
	if res.StatusCode != http.StatusUnauthorized || isSessionRequest(req) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cookie := a.Cookie()
	if cookie == nil {
		return
	}
	a.client.Jar.SetCookies(a.client.dsn, []*http.Cookie{{
		Name:   cookie.Name,
		Value:  cookie.Value,
		Path:   "/",
		MaxAge: -1,
	}})
	a.renewAt = time.Time{}
	a.client.logger.Debug().
		Str("user", a.Username).
		Msg("couchdb session rejected")
}
