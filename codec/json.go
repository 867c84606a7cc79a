package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Manifests written with JSON stay diffable and greppable, which matters
// when debugging a catalog mirror by hand. Prefer it for anything a human
// may need to read; the msgpack codec is denser and faster for everything
// else.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }
