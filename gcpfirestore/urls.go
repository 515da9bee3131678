// Copyright 2024 The FirestORM Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gcpfirestore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"cloud.google.com/go/firestore"
	firestorm "github.com/nelsondiego/FirestORM"
)

func init() {
	firestorm.DefaultURLMux().RegisterClient(Scheme, &URLOpener{})
}

// Scheme is the URL scheme gcpfirestore registers its URLOpener under on
// firestorm.DefaultURLMux.
const Scheme = "firestore"

// URLOpener opens firestore URLs like "firestore://myproject".
//
// The URL's host is the GCP project id. The URL's path is ignored.
//
// The following query parameters are supported:
//
//   - timestamps: boolean; sets firestorm.Config.Timestamps.
//   - softdeletes: boolean; sets firestorm.Config.SoftDeletes.
type URLOpener struct {
	// Client is optional. When nil, the opener dials a client for the URL's
	// project with application default credentials.
	Client *firestore.Client
}

// OpenClientURL opens a firestorm.Client based on u.
func (o *URLOpener) OpenClientURL(ctx context.Context, u *url.URL) (*firestorm.Client, error) {
	var cfg firestorm.Config
	for param, values := range u.Query() {
		value := values[0]
		switch param {
		case "timestamps", "softdeletes":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("open client %v: invalid value %q for %q: %v", u, value, param, err)
			}
			if param == "timestamps" {
				cfg.Timestamps = b
			} else {
				cfg.SoftDeletes = b
			}
		default:
			return nil, fmt.Errorf("open client %v: invalid query parameter %q", u, param)
		}
	}
	client := o.Client
	if client == nil {
		if u.Host == "" {
			return nil, fmt.Errorf("open client %v: URL host must be the GCP project id", u)
		}
		c, _, err := Dial(ctx, u.Host)
		if err != nil {
			return nil, fmt.Errorf("open client %v: %v", u, err)
		}
		client = c
	}
	return OpenClient(client, cfg)
}
