package schema

import (
	"errors"
	"fmt"

	"github.com/hupe1980/astrodb/record"
)

// Codec converts textual rows into binary records for one compiled
// Schema.
//
// A Codec is stateless apart from its Schema and safe for concurrent
// use as long as each call gets its own destination buffer.
type Codec struct {
	schema *Schema
}

// NewCodec returns a codec for s.
func NewCodec(s *Schema) *Codec {
	return &Codec{schema: s}
}

// Schema returns the codec's schema.
func (c *Codec) Schema() *Schema { return c.schema }

// NewBuffer returns a record buffer sized for the codec's schema.
func (c *Codec) NewBuffer() *record.Buffer {
	return record.NewBuffer(c.schema.RecordSize())
}

// ConvertRow resets dst and converts every schema field from values,
// keyed by source column symbol, then finalizes deferred sign flips.
//
// failures counts fields whose conversion failed; such fields hold
// their sentinel value and never abort the row. err is the first field
// failure (wrapping ErrConvert) for diagnostics, or an ErrLayout error
// when dst was not sized for this schema, which is fatal.
func (c *Codec) ConvertRow(dst *record.Buffer, values map[string]string) (failures int, err error) {
	if dst.Len() != c.schema.recordSize {
		return 0, fmt.Errorf("%w: buffer size %d does not match record size %d", ErrLayout, dst.Len(), c.schema.recordSize)
	}

	dst.Reset()

	var firstErr error

	for i := range c.schema.fields {
		f := &c.schema.fields[i]

		cv, ok := converterFor(f)
		if !ok {
			return 0, fmt.Errorf("%w: field %q has no converter for type %s", ErrLayout, f.Symbol, f.Type)
		}

		cerr := c.convertField(cv, dst, f, values)
		if cerr != nil {
			failures++

			if firstErr == nil {
				firstErr = cerr
			}
		}
	}

	dst.Finalize()

	return failures, firstErr
}

// convertField runs one field's conversion, retrying on the alternate
// source column when the primary fails. Group components never retry:
// their destination accumulates, so a second attempt after a poisoning
// NaN cannot recover the group.
func (c *Codec) convertField(cv Converter, dst *record.Buffer, f *Field, values map[string]string) error {
	err := cv.Convert(dst, f, values[f.Symbol])
	if err == nil {
		return nil
	}

	if f.AltSymbol == "" || f.Type.GroupComponent() {
		return wrapFieldErr(f, values[f.Symbol], err)
	}

	alt, ok := values[f.AltSymbol]
	if !ok {
		return wrapFieldErr(f, values[f.Symbol], err)
	}

	if err := cv.Convert(dst, f, alt); err != nil {
		return wrapFieldErr(f, alt, err)
	}

	return nil
}

// wrapFieldErr makes sure custom converter failures surface as
// ConversionError like the builtins' do.
func wrapFieldErr(f *Field, raw string, err error) error {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return err
	}

	return &ConversionError{Symbol: f.Symbol, Raw: raw, Cause: err}
}
