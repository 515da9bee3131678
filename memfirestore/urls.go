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

package memfirestore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	firestorm "github.com/nelsondiego/FirestORM"
)

func init() {
	firestorm.DefaultURLMux().RegisterClient(Scheme, &URLOpener{})
}

// Scheme is the URL scheme memfirestore registers its URLOpener under on
// firestorm.DefaultURLMux.
const Scheme = "mem"

// URLOpener opens URLs like "mem://".
//
// The URL's host and path are ignored.
//
// The following query parameters are supported:
//
//   - timestamps: boolean; sets firestorm.Config.Timestamps.
//   - softdeletes: boolean; sets firestorm.Config.SoftDeletes.
//   - filename: persists the store to the file on Close and loads it on open.
type URLOpener struct{}

// OpenClientURL opens a firestorm.Client based on u.
func (*URLOpener) OpenClientURL(ctx context.Context, u *url.URL) (*firestorm.Client, error) {
	var cfg firestorm.Config
	opts := &Options{}
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
		case "filename":
			opts.Filename = value
		default:
			return nil, fmt.Errorf("open client %v: invalid query parameter %q", u, param)
		}
	}
	return OpenClient(cfg, opts)
}
