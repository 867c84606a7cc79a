package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is a MessagePack codec backed by github.com/vmihailenco/msgpack.
//
// It is the default for persisted metadata: schema digests, field tables
// and per-table import summaries encode to roughly a third of their JSON
// size, which adds up across a library of catalogs.
type Msgpack struct{}

// Marshal encodes the value to MessagePack.
func (Msgpack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// Unmarshal decodes the MessagePack data into v.
func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// Name returns the unique name of the codec ("msgpack").
func (Msgpack) Name() string { return "msgpack" }
