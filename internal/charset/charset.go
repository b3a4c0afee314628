// Package charset resolves character encodings by name for reading and
// writing file content.
//
// Encodings come from golang.org/x/text, plus a strict 7-bit US-ASCII
// decoder that maps every byte >= 0x80 to U+FFFD, one replacement glyph per
// byte. Existing consumers depend on that exact output when multi-byte UTF-8
// text is read back through the narrow accessor.
package charset

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
)

// Canonical names of the built-in encodings.
const (
	UTF8    = "UTF-8"
	USASCII = "US-ASCII"
	Latin1  = "ISO-8859-1"
	CP1252  = "windows-1252"
)

var builtin = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
	"us-ascii":     ASCII,
	"ascii":        ASCII,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
}

// Lookup returns the encoding registered under name (case-insensitive).
// Names not in the built-in table are resolved through the IANA registry.
func Lookup(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return unicode.UTF8, nil
	}
	if enc, ok := builtin[key]; ok {
		return enc, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, gerrors.Wrapf(gerrors.ErrUnknownEncoding, "%q", name)
	}
	return enc, nil
}

// Names returns the built-in canonical encoding names.
func Names() []string {
	return []string{UTF8, USASCII, Latin1, CP1252}
}

// Name returns the display name of enc, or "custom" when it has none.
func Name(enc encoding.Encoding) string {
	if enc == unicode.UTF8 {
		return UTF8
	}
	if s, ok := enc.(fmt.Stringer); ok {
		return s.String()
	}
	return "custom"
}

// NewReader wraps r so that reads yield UTF-8 decoded from enc.
func NewReader(r io.Reader, enc encoding.Encoding) io.Reader {
	if enc == unicode.UTF8 {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

// Encode converts s to bytes in enc. Characters enc cannot represent fail
// with a *errors.ValidationError rather than being silently replaced.
func Encode(enc encoding.Encoding, s string) ([]byte, error) {
	if enc == unicode.UTF8 {
		return []byte(s), nil
	}
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		if gerrors.Is(err, gerrors.ErrInvalidInput) {
			return nil, err
		}
		return nil, gerrors.NewValidationError("text not representable in " + Name(enc)).WithCause(err)
	}
	return out, nil
}

// ASCII is strict 7-bit US-ASCII. Decoding maps each byte >= 0x80 to U+FFFD;
// encoding rejects any rune >= 0x80.
var ASCII encoding.Encoding = asciiEncoding{}

type asciiEncoding struct{}

func (asciiEncoding) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: asciiDecoder{}}
}

func (asciiEncoding) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: asciiEncoder{}}
}

func (asciiEncoding) String() string { return USASCII }

type asciiDecoder struct{ transform.NopResetter }

var replacement = []byte(string(utf8.RuneError))

func (asciiDecoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		if b < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = b
			nDst++
			nSrc++
			continue
		}
		if nDst+len(replacement) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], replacement)
		nSrc++
	}
	return nDst, nSrc, nil
}

type asciiEncoder struct{ transform.NopResetter }

func (asciiEncoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	if i := bytes.IndexFunc(src[:n], func(r rune) bool { return r >= utf8.RuneSelf }); i >= 0 {
		n = i
		copy(dst, src[:n])
		return n, n, encodingError(src[n:])
	}
	copy(dst, src[:n])
	if n < len(src) {
		return n, n, transform.ErrShortDst
	}
	return n, n, nil
}

func encodingError(rest []byte) error {
	r, _ := utf8.DecodeRune(rest)
	return gerrors.NewValidationError("character not representable in US-ASCII").WithValue(string(r))
}
