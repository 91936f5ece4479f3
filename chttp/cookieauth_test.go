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
	"net/http/httptest"
	"net/url"
	"testing"

	kivik "github.com/go-kivik/kivik/v4"
	"gitlab.com/flimzy/testy"
	"golang.org/x/net/publicsuffix"
)

const testSessionCookie = "YWRtaW46NUI5M0VGODk6eLUGqXf0HRSEV9PPLaZX86sBYes"

func TestCookieAuthAuthenticate(t *testing.T) {
	tests := []struct {
		name           string
		handler        func(t *testing.T) http.HandlerFunc
		status         int
		err            string
		expectedCookie *http.Cookie
	}{
		{
			name: "success",
			handler: func(t *testing.T) http.HandlerFunc {
				var sessCounter int
				return func(w http.ResponseWriter, r *http.Request) {
					h := w.Header()
					h.Set("Content-Type", "application/json")
					h.Set("Server", "CouchDB/3.3.1 (Erlang OTP/24)")
					if r.URL.Path == "/_session" {
						sessCounter++
						if sessCounter > 1 {
							t.Error("Too many calls to /_session")
						}
						h.Set("Set-Cookie", "AuthSession="+testSessionCookie+"; Version=1; Path=/; HttpOnly")
						w.WriteHeader(http.StatusOK)
						_, _ = w.Write([]byte(`{"ok":true,"name":"admin","roles":["_admin"]}`))
						return
					}
					if cookie := r.Header.Get("Cookie"); cookie != "AuthSession="+testSessionCookie {
						t.Errorf("Expected cookie not found: %s", cookie)
					}
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte(`{"ok":true}`))
				}
			},
			expectedCookie: &http.Cookie{
				Name:  kivik.SessionCookieName,
				Value: testSessionCookie,
			},
		},
		{
			name: "cookie not set",
			handler: func(*testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusOK)
				}
			},
		},
		{
			name: "bad credentials",
			handler: func(*testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"unauthorized","reason":"Name or password is incorrect."}`))
				}
			},
			status: http.StatusUnauthorized,
			err:    "Unauthorized: Name or password is incorrect.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := httptest.NewServer(tt.handler(t))
			t.Cleanup(s.Close)
			auth := &CookieAuth{Username: "foo", Password: "bar"}
			c, err := New(s.URL, WithAuth(auth))
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.DoError(context.Background(), http.MethodGet, "/foo", nil)
			testy.StatusError(t, tt.err, tt.status, err)
			if d := testy.DiffInterface(tt.expectedCookie, auth.Cookie()); d != nil {
				t.Error(d)
			}

			// A second request must reuse the session.
			_, err = c.DoError(context.Background(), http.MethodGet, "/foo", nil)
			testy.StatusError(t, tt.err, tt.status, err)
			if d := testy.DiffInterface(tt.expectedCookie, auth.Cookie()); d != nil {
				t.Error(d)
			}
		})
	}
}

func TestCookieAuthDropsCookieOn401(t *testing.T) {
	var sessions int
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/_session":
			sessions++
			w.Header().Set("Set-Cookie", "AuthSession="+testSessionCookie+"; Version=1; Path=/; HttpOnly")
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/expired":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","reason":"session expired"}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	t.Cleanup(s.Close)
	auth := &CookieAuth{Username: "foo", Password: "bar"}
	c, err := New(s.URL, WithAuth(auth))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.DoError(context.Background(), http.MethodGet, "/expired", nil)
	if status := testy.StatusCode(err); status != http.StatusUnauthorized {
		t.Fatalf("Unexpected status %d: %v", status, err)
	}
	if cookie := auth.Cookie(); cookie != nil {
		t.Errorf("Expected the session cookie to be dropped, got %v", cookie)
	}
	if _, err := c.DoError(context.Background(), http.MethodGet, "/foo", nil); err != nil {
		t.Fatal(err)
	}
	if sessions != 2 {
		t.Errorf("Expected 2 session requests, got %d", sessions)
	}
}

func TestCookie(t *testing.T) {
	tests := []struct {
		name     string
		auth     *CookieAuth
		expected *http.Cookie
	}{
		{
			name:     "not authenticated",
			auth:     &CookieAuth{},
			expected: nil,
		},
		{
			name: "no cookies",
			auth: func() *CookieAuth {
				dsn, _ := url.Parse("http://example.com/")
				jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
				return &CookieAuth{
					client: &Client{
						dsn:    dsn,
						Client: &http.Client{Jar: jar},
					},
				}
			}(),
			expected: nil,
		},
		{
			name: "cookie found",
			auth: func() *CookieAuth {
				dsn, err := url.Parse("http://example.com/")
				if err != nil {
					t.Fatal(err)
				}
				jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
				if err != nil {
					t.Fatal(err)
				}
				jar.SetCookies(dsn, []*http.Cookie{
					{Name: kivik.SessionCookieName, Value: "foo"},
					{Name: "other", Value: "bar"},
				})
				return &CookieAuth{
					client: &Client{
						dsn:    dsn,
						Client: &http.Client{Jar: jar},
					},
				}
			}(),
			expected: &http.Cookie{Name: kivik.SessionCookieName, Value: "foo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.auth.Cookie()
			if d := testy.DiffInterface(tt.expected, result); d != nil {
				t.Error(d)
			}
		})
	}
}
