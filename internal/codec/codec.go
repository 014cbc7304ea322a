// Package codec converts between the textual representation the
// configuration store holds and the typed values adapters speak in.
//
// Rule-time data flows as strings through the multimap layer and is
// decoded only at the points where an adapter needs a concrete value
// (filter candidates, command parameters). Encoding/decoding never
// partially succeeds: a malformed input returns ErrBadFormat and the
// caller is expected to log and skip the offending value.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type identifies the typed representation a string is encoded from/to.
type Type int

const (
	Uint8 Type = iota
	Uint16
	Int32
	Int64
	ByteArray
	Text
)

func (t Type) String() string {
	switch t {
	case Uint8:
		return "u8"
	case Uint16:
		return "u16"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case ByteArray:
		return "byte-array"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// ErrBadFormat is returned for overflow-length input, malformed hex, or an
// unsupported type. It is never returned alongside a partially-decoded value.
var ErrBadFormat = errors.New("codec: bad format")

// Encode converts a typed Go value into its textual store representation.
func Encode(value any, t Type) (string, error) {
	switch t {
	case Uint8:
		v, ok := value.(uint8)
		if !ok {
			return "", fmt.Errorf("%w: expected uint8, got %T", ErrBadFormat, value)
		}
		return fmt.Sprintf("%02X", v), nil
	case Uint16:
		v, ok := value.(uint16)
		if !ok {
			return "", fmt.Errorf("%w: expected uint16, got %T", ErrBadFormat, value)
		}
		return fmt.Sprintf("%04X", v), nil
	case Int32:
		v, ok := value.(int32)
		if !ok {
			return "", fmt.Errorf("%w: expected int32, got %T", ErrBadFormat, value)
		}
		return strconv.FormatInt(int64(v), 10), nil
	case Int64:
		v, ok := value.(int64)
		if !ok {
			return "", fmt.Errorf("%w: expected int64, got %T", ErrBadFormat, value)
		}
		return strconv.FormatInt(v, 10), nil
	case ByteArray:
		v, ok := value.([]byte)
		if !ok {
			return "", fmt.Errorf("%w: expected []byte, got %T", ErrBadFormat, value)
		}
		var sb strings.Builder
		sb.Grow(len(v) * 2)
		for _, b := range v {
			fmt.Fprintf(&sb, "%02X", b)
		}
		return sb.String(), nil
	case Text:
		v, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%w: expected string, got %T", ErrBadFormat, value)
		}
		return v, nil
	default:
		return "", fmt.Errorf("%w: unsupported type %v", ErrBadFormat, t)
	}
}

// Decode converts a textual store representation into its typed Go value.
// Hex decoding tolerates an optional leading "0x". u8 input longer than 2
// hex digits (4 including "0x") fails; u16 is analogous at 4/6. Byte-array
// decodes hex-digit pairs until the input is exhausted.
func Decode(s string, t Type) (any, error) {
	switch t {
	case Uint8:
		return decodeUint8(s)
	case Uint16:
		return decodeUint16(s)
	case Int32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		return int32(v), nil
	case Int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		return v, nil
	case ByteArray:
		return decodeByteArray(s)
	case Text:
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %v", ErrBadFormat, t)
	}
}

func stripHexPrefix(s string) (string, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:], true
	}
	return s, false
}

func decodeUint8(s string) (uint8, error) {
	body, hadPrefix := stripHexPrefix(s)
	maxLen := 2
	if hadPrefix {
		maxLen = 2
	}
	if len(body) > maxLen {
		return 0, fmt.Errorf("%w: %q overflows u8", ErrBadFormat, s)
	}
	v, err := strconv.ParseUint(body, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return uint8(v), nil
}

func decodeUint16(s string) (uint16, error) {
	body, _ := stripHexPrefix(s)
	if len(body) > 4 {
		return 0, fmt.Errorf("%w: %q overflows u16", ErrBadFormat, s)
	}
	v, err := strconv.ParseUint(body, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return uint16(v), nil
}

func decodeByteArray(s string) ([]byte, error) {
	body, _ := stripHexPrefix(s)
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("%w: %q has odd hex digit count", ErrBadFormat, s)
	}
	out := make([]byte, 0, len(body)/2)
	for i := 0; i < len(body); i += 2 {
		v, err := strconv.ParseUint(body[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// AllocateBuffer returns a zeroed container sized for the target type, for
// callers that want to receive a decoded value through an output reference
// (mirrors the teacher's call sites that pre-size a destination before a
// typed getter fills it in).
func AllocateBuffer(t Type) any {
	switch t {
	case Uint8:
		return new(uint8)
	case Uint16:
		return new(uint16)
	case Int32:
		return new(int32)
	case Int64:
		return new(int64)
	case ByteArray:
		return new([]byte)
	case Text:
		return new(string)
	default:
		return nil
	}
}
