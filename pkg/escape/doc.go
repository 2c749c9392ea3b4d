// Package escape converts between raw bytes and text without ever failing.
//
// # Escape-substitution
//
// Whenever a byte cannot be decoded in the configured encoding, or a
// character cannot be encoded, it is rendered as a four character literal:
//
//	\xHH
//
// where HH is the lowercase hexadecimal value of the offending byte. A
// character that is not representable on output is escaped byte by byte from
// its UTF-8 form. For example, with the "ascii" codec:
//
//	decode []byte{'o', 'k', 0xff}  ->  `ok\xff`
//	encode "café"                  ->  `caf\xc3\xa9`
//
// # Encodings
//
// "ascii" and "utf-8" are built in. Any other IANA name known to
// golang.org/x/text/encoding/ianaindex (for example "iso-8859-1" or
// "windows-1252") can be looked up as well. Bytes the encoding leaves
// undefined, and truncated or malformed multi-byte sequences, are escaped per
// byte like in the built-in codecs. Stateful encodings such as "iso-2022-jp"
// are not supported, since lines are decoded independently.
package escape
