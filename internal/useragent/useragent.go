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

// Package useragent includes constants and utilities for setting the User-Agent
// for FirestORM connections to GCP.
package useragent // import "github.com/nelsondiego/FirestORM/internal/useragent"

import (
	"fmt"

	"google.golang.org/api/option"
)

const (
	prefix  = "firestorm"
	version = "0.1.0"
)

// ClientOption returns an option.ClientOption that sets a FirestORM User-Agent.
func ClientOption(api string) option.ClientOption {
	return option.WithUserAgent(userAgentString(api))
}

func userAgentString(api string) string {
	return fmt.Sprintf("%s-%s/%s", prefix, api, version)
}
