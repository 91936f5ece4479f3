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
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strings"
)

// Default proxy authentication headers.
const (
	HeaderProxyUser  = "X-Auth-CouchDB-UserName"
	HeaderProxyRoles = "X-Auth-CouchDB-Roles"
	HeaderProxyToken = "X-Auth-CouchDB-Token"
)

// ProxyAuth provides CouchDB proxy authentication: the user name and roles
// are sent in request headers, with a token signed by the shared secret if
// one is set.
// See https://docs.couchdb.org/en/stable/api/server/authn.html#proxy-authentication
type ProxyAuth struct {
	Username string
	Secret   string
	Roles    []string
	// Headers optionally renames the proxy headers. The keys are the default
	// header names, the values the names to send instead.
	Headers http.Header
}

var (
	_ Authenticator = &ProxyAuth{}
	_ authorizer    = &ProxyAuth{}
)

// Authenticate installs proxy authentication on the client.
func (a *ProxyAuth) Authenticate(c *Client) error {
	c.installAuth(a)
	return nil
}

func (a *ProxyAuth) authorize(req *http.Request) error {
	if token := a.token(); token != "" {
		req.Header.Set(a.header(HeaderProxyToken), token)
	}
	req.Header.Set(a.header(HeaderProxyUser), a.Username)
	req.Header.Set(a.header(HeaderProxyRoles), strings.Join(a.Roles, ","))
	return nil
}

// token is the hex encoded HMAC-SHA1 of the user name, keyed by the secret.
func (a *ProxyAuth) token() string {
	if a.Secret == "" {
		return ""
	}
	mac := hmac.New(sha1.New, []byte(a.Secret))
	_, _ = mac.Write([]byte(a.Username))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *ProxyAuth) header(name string) string {
	if renamed := a.Headers.Get(name); renamed != "" {
		return http.CanonicalHeaderKey(renamed)
	}
	return name
}
