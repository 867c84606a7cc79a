package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tablePayload struct {
	Catalog string            `json:"catalog" msgpack:"catalog"`
	Records uint64            `json:"records" msgpack:"records"`
	MagMax  float64           `json:"mag_max" msgpack:"mag_max"`
	Fields  []string          `json:"fields" msgpack:"fields"`
	Attrs   map[string]string `json:"attrs" msgpack:"attrs"`
}

func samplePayload() tablePayload {
	return tablePayload{
		Catalog: "hip/main",
		Records: 117955,
		MagMax:  12.4,
		Fields:  []string{"HIP", "RAdeg", "DEdeg", "Vmag"},
		Attrs:   map[string]string{"epoch": "J1991.25", "frame": "ICRS"},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []Codec{JSON{}, Msgpack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			in := samplePayload()

			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out tablePayload
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "msgpack"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("protobuf")
	assert.False(t, ok)

	// Whatever the default is, it must be resolvable by name so persisted
	// files can always be reopened.
	_, ok = ByName(Default.Name())
	assert.True(t, ok)
}

func TestMsgpackSmallerThanJSON(t *testing.T) {
	v := samplePayload()
	j := MustMarshal(JSON{}, v)
	m := MustMarshal(Msgpack{}, v)
	assert.Less(t, len(m), len(j))
}

func TestMustMarshalPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustMarshal(JSON{}, make(chan int))
	})
}
