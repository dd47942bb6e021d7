package protocol

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// The copy-data transport enforces no framing beyond a declared byte count, so
// both processes must agree on the payload layout exactly: UTF-16LE code units
// followed by one NUL terminator unit. The terminator is included in the
// declared byte count; decoders strip it when present but must not require it.

var (
	ErrOddPayload = errors.New("copy-data payload has odd byte count")
)

// EncodeWideZ encodes text as UTF-16LE with a trailing NUL unit. The returned
// buffer is freshly allocated per call and never retained by the codec.
func EncodeWideZ(text string) []byte {
	units := utf16.Encode([]rune(text))
	buf := make([]byte, (len(units)+1)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}
	// Last two bytes stay zero: the terminator unit.
	return buf
}

// DecodeWideZ reconstructs text from a copy-data payload of the declared
// length. A single trailing NUL unit is stripped when present; interior NULs
// terminate the decoded text the way the receiving C side would see it.
func DecodeWideZ(buf []byte) (string, error) {
	if len(buf)%2 != 0 {
		return "", ErrOddPayload
	}
	units := make([]uint16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		u := binary.LittleEndian.Uint16(buf[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), nil
}

// EncodedLen reports the byte count EncodeWideZ would declare for text,
// terminator included.
func EncodedLen(text string) int {
	return (len(utf16.Encode([]rune(text))) + 1) * 2
}
