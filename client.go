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

package couchdb

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	kivik "github.com/go-kivik/kivik/v4"
)

// AllDBs returns the names of all databases on the server.
func (c *Client) AllDBs(ctx context.Context) ([]string, error) {
	var allDBs []string
	_, err := c.DoJSON(ctx, http.MethodGet, "/_all_dbs", nil, &allDBs)
	return allDBs, err
}

// Ping queries the /_up endpoint, and returns true if there are no errors, or
// if a 400 (Bad Request) is returned, and the Server: header indicates a server
// version prior to 2.x.
func (c *Client) Ping(ctx context.Context) bool {
	resp, err := c.DoError(ctx, http.MethodHead, "/_up", nil)
	if resp != nil && statusCode(err) == http.StatusBadRequest {
		return strings.HasPrefix(resp.Header.Get("Server"), "CouchDB/1.")
	}
	return err == nil
}

// ServerVersion describes the server, as reported by its welcome message.
type ServerVersion struct {
	// Version is the server version.
	Version string
	// Vendor is the vendor name.
	Vendor string
	// Features is a list of enabled optional features.
	Features []string
	// RawResponse is the raw response body returned by the server.
	RawResponse json.RawMessage
}

// Version returns the server's version information.
func (c *Client) Version(ctx context.Context) (*ServerVersion, error) {
	var raw json.RawMessage
	if _, err := c.DoJSON(ctx, http.MethodGet, "/", nil, &raw); err != nil {
		return nil, err
	}
	var result struct {
		Version  string   `json:"version"`
		Features []string `json:"features"`
		Vendor   struct {
			Name string `json:"name"`
		} `json:"vendor"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &kivik.Error{Status: http.StatusBadGateway, Err: err}
	}
	return &ServerVersion{
		Version:     result.Version,
		Vendor:      result.Vendor.Name,
		Features:    result.Features,
		RawResponse: raw,
	}, nil
}
