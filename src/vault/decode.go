/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vault

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
)

// Shape identifies where a vault response record carried its token.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeTokens             // {"tokens": {<field>: token}}
	ShapeFields             // {"fields": {<field>: token}}
	ShapeToken              // {"token": token}
	ShapeBare               // {<field>: token}
)

var shapeNames = map[Shape]string{
	ShapeUnrecognized: "unrecognized",
	ShapeTokens:       "tokens",
	ShapeFields:       "fields",
	ShapeToken:        "token",
	ShapeBare:         "bare",
}

func (s Shape) String() string {
	return shapeNames[s]
}

// Decoded is the result of matching one response record against the known
// token shapes. For ShapeUnrecognized, Raw holds the record as received.
// Present is false when a shape matched but the token was null or empty.
type Decoded struct {
	Shape   Shape
	Token   string
	Present bool
	Raw     json.RawMessage
}

// DecodeRecord checks the record shapes in priority order: tokens[field],
// fields[field], a top-level "token" key, then a bare field-named key.
func DecodeRecord(raw json.RawMessage, field string) Decoded {
	unrecognized := Decoded{Shape: ShapeUnrecognized, Raw: raw}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(raw, &record); err != nil || record == nil {
		return unrecognized
	}

	for _, nested := range []struct {
		key   string
		shape Shape
	}{{"tokens", ShapeTokens}, {"fields", ShapeFields}} {
		inner, ok := record[nested.key]
		if !ok {
			continue
		}
		var values map[string]json.RawMessage
		if err := json.Unmarshal(inner, &values); err != nil {
			continue
		}
		if v, ok := values[field]; ok {
			return scalar(nested.shape, v, raw)
		}
	}
	if v, ok := record["token"]; ok {
		return scalar(ShapeToken, v, raw)
	}
	if v, ok := record[field]; ok {
		return scalar(ShapeBare, v, raw)
	}
	return unrecognized
}

func scalar(shape Shape, v json.RawMessage, raw json.RawMessage) Decoded {
	v = bytes.TrimSpace(v)
	switch {
	case len(v) == 0 || bytes.Equal(v, []byte("null")):
		return Decoded{Shape: shape, Raw: raw}
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return Decoded{Shape: ShapeUnrecognized, Raw: raw}
		}
		return Decoded{Shape: shape, Token: s, Present: strings.TrimSpace(s) != "", Raw: raw}
	case v[0] == '{' || v[0] == '[':
		return Decoded{Shape: ShapeUnrecognized, Raw: raw}
	default:
		// numbers and booleans keep their JSON spelling
		return Decoded{Shape: shape, Token: string(v), Present: true, Raw: raw}
	}
}
