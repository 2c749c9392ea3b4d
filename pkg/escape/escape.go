// Package escape converts between raw bytes and text without ever failing. See
// doc.go for docs.
package escape

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// ErrUnknownEncoding is returned by Lookup for names without a codec.
var ErrUnknownEncoding = errors.New("unknown encoding")

type kind int

// maxSequence is the longest byte sequence any supported encoding maps to a
// single character (GB18030 and surrogate pairs in UTF-16).
const maxSequence = 4

const (
	kindASCII kind = iota
	kindUTF8
	kindIANA
)

// Codec decodes and encodes text in one fixed encoding, substituting \xHH for
// anything it cannot represent. A Codec is safe for concurrent use.
type Codec struct {
	name string
	kind kind
	enc  encoding.Encoding
}

// Built-in codecs.
var (
	ASCII = &Codec{name: "ascii", kind: kindASCII}
	UTF8  = &Codec{name: "utf-8", kind: kindUTF8}
)

// Lookup returns the codec for an encoding name. Names are case-insensitive.
func Lookup(name string) (*Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ascii", "us-ascii":
		return ASCII, nil
	case "utf-8", "utf8", "":
		return UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	if enc == japanese.ISO2022JP || enc == simplifiedchinese.HZGB2312 {
		// Shift state cannot survive line-by-line decoding.
		return nil, fmt.Errorf("%w: %q is stateful", ErrUnknownEncoding, name)
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = strings.ToLower(name)
	}
	return &Codec{name: strings.ToLower(canonical), kind: kindIANA, enc: enc}, nil
}

// Name returns the canonical lowercase name of the encoding.
func (c *Codec) Name() string {
	return c.name
}

// Byte returns the escape literal for one byte.
func Byte(b byte) string {
	return fmt.Sprintf(`\x%02x`, b)
}

// Decode converts raw bytes into text. Undecodable bytes become \xHH.
func (c *Codec) Decode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))

	switch c.kind {
	case kindASCII:
		for _, x := range b {
			if x < utf8.RuneSelf {
				sb.WriteByte(x)
			} else {
				sb.WriteString(Byte(x))
			}
		}
	case kindUTF8:
		for len(b) > 0 {
			r, size := utf8.DecodeRune(b)
			if r == utf8.RuneError && size <= 1 {
				sb.WriteString(Byte(b[0]))
				b = b[1:]
				continue
			}
			sb.Write(b[:size])
			b = b[size:]
		}
	case kindIANA:
		if cm, ok := c.enc.(*charmap.Charmap); ok {
			for _, x := range b {
				if r := cm.DecodeByte(x); r == utf8.RuneError {
					sb.WriteString(Byte(x))
				} else {
					sb.WriteRune(r)
				}
			}
			break
		}
		for len(b) > 0 {
			text, n := c.decodeSequence(b)
			if n == 0 {
				sb.WriteString(Byte(b[0]))
				b = b[1:]
				continue
			}
			sb.WriteString(text)
			b = b[n:]
		}
	}
	return sb.String()
}

// decodeSequence decodes the shortest prefix of b that yields clean text and
// returns that text and the prefix length. It returns 0 if b[0] does not
// start a decodable sequence.
func (c *Codec) decodeSequence(b []byte) (string, int) {
	for n := 1; n <= maxSequence && n <= len(b); n++ {
		out, err := c.enc.NewDecoder().Bytes(b[:n])
		if err != nil {
			continue
		}
		if c.clean(out, b[:n]) {
			return string(out), n
		}
	}
	return "", 0
}

// clean reports whether out is a faithful decoding of src. x/text decoders
// substitute U+FFFD for invalid input, so a replacement character only counts
// when src is the encoding's own form of U+FFFD.
func (c *Codec) clean(out, src []byte) bool {
	if !utf8.Valid(out) {
		return false
	}
	if !bytes.ContainsRune(out, utf8.RuneError) {
		return true
	}
	replacement, err := c.enc.NewEncoder().Bytes([]byte(string(utf8.RuneError)))
	return err == nil && bytes.Equal(replacement, src)
}

// Encode converts text into bytes. Characters the encoding cannot represent,
// as well as invalid UTF-8 in s, are written as \xHH per UTF-8 byte.
func (c *Codec) Encode(s string) []byte {
	out := make([]byte, 0, len(s))

	switch c.kind {
	case kindUTF8:
		for len(s) > 0 {
			r, size := utf8.DecodeRuneInString(s)
			if r == utf8.RuneError && size <= 1 {
				out = append(out, Byte(s[0])...)
			} else {
				out = append(out, s[:size]...)
			}
			s = s[size:]
		}
	case kindASCII:
		for i := 0; i < len(s); i++ {
			if s[i] < utf8.RuneSelf {
				out = append(out, s[i])
			} else {
				out = append(out, Byte(s[i])...)
			}
		}
	case kindIANA:
		enc := c.enc.NewEncoder()
		for len(s) > 0 {
			r, size := utf8.DecodeRuneInString(s)
			if r != utf8.RuneError || size > 1 {
				if b, err := enc.Bytes([]byte(s[:size])); err == nil {
					out = append(out, b...)
					s = s[size:]
					continue
				}
			}
			for i := 0; i < size; i++ {
				lit, err := enc.Bytes([]byte(Byte(s[i])))
				if err != nil {
					lit = []byte(Byte(s[i]))
				}
				out = append(out, lit...)
			}
			s = s[size:]
		}
	}
	return out
}
