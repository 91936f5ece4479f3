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

import "net/http"

// BasicAuth provides HTTP Basic Auth for a client.
type BasicAuth struct {
	Username string
	Password string
}

var (
	_ Authenticator = &BasicAuth{}
	_ authorizer    = &BasicAuth{}
)

// Authenticate sets HTTP Basic Auth credentials on every request made by c.
func (a *BasicAuth) Authenticate(c *Client) error {
	c.installAuth(a)
	return nil
}

func (a *BasicAuth) authorize(req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}
