// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import gojson "github.com/goccy/go-json"

// jsonUnmarshal decodes chunk-metadata objects with the same JSON codec
// the envelope package uses.
func jsonUnmarshal(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}
