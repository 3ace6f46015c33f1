package console

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textDecoder converts raw output chunks to UTF-8. Bytes of a character
// split across chunks are carried to the next call, so one decoder must
// serve every read of a given child.
type textDecoder struct {
	t       transform.Transformer
	auto    bool
	started bool

	carry []byte // incomplete trailing sequence of the last chunk
	src   []byte // carry + chunk
	dst   []byte
	out   []byte
}

func newTextDecoder(enc encoding.Encoding, auto bool) *textDecoder {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &textDecoder{
		t:    enc.NewDecoder(),
		auto: auto,
		dst:  make([]byte, 4096),
	}
}

// decode converts chunk and returns the UTF-8 text it completes. The result
// is only valid until the next call.
func (d *textDecoder) decode(chunk []byte) ([]byte, error) {
	if !d.started {
		if len(chunk) == 0 {
			return nil, nil
		}
		d.started = true
		enc, n := detectBOM(chunk)
		if n > 0 {
			chunk = chunk[n:]
			if d.auto && enc != nil {
				d.t = enc.NewDecoder()
			}
		}
	}

	src := chunk
	if len(d.carry) > 0 {
		d.src = append(append(d.src[:0], d.carry...), chunk...)
		src = d.src
	}
	return d.transform(src, false)
}

// flush decodes whatever is still carried, as at end of stream. An
// incomplete sequence becomes the encoding's replacement character.
func (d *textDecoder) flush() ([]byte, error) {
	if len(d.carry) == 0 {
		return nil, nil
	}
	d.src = append(d.src[:0], d.carry...)
	return d.transform(d.src, true)
}

func (d *textDecoder) transform(src []byte, atEOF bool) ([]byte, error) {
	d.out = d.out[:0]
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		d.out = append(d.out, d.dst[:nDst]...)
		src = src[nSrc:]
		switch {
		case err == nil:
			d.carry = d.carry[:0]
			return d.out, nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case errors.Is(err, transform.ErrShortSrc) && !atEOF:
			d.carry = append(d.carry[:0], src...)
			return d.out, nil
		default:
			return nil, fmt.Errorf("decode output: %w", err)
		}
	}
}
