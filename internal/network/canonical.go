package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for identity hashing.
//
// This is the ONLY serialization used for content-addressed history IDs.
// Properties:
//   - Object keys sorted by UTF-16 code units (RFC 8785 ordering)
//   - Strings NFC normalized at the serialization boundary
//   - No HTML escaping (< > & appear literally)
//   - No floats and no nulls (returns error) - fractions are encoded in
//     parts-per-million before hashing, see FractionPPM
func MarshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return marshalCanonicalString(val)
	case int:
		return fmt.Appendf(nil, "%d", val), nil
	case int64:
		return fmt.Appendf(nil, "%d", val), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// FractionPPM converts an edge fraction to parts-per-million for canonical
// encoding. Fractions outside [0, 1] are clamped.
func FractionPPM(fraction float64) int64 {
	if fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1_000_000
	}
	return int64(fraction*1_000_000 + 0.5)
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		enc, err := MarshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(enc)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sortKeysUTF16(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyEnc, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("object key %q: %w", k, err)
		}
		buf.Write(keyEnc)
		buf.WriteByte(':')

		valEnc, err := MarshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		buf.Write(valEnc)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sortKeysUTF16 sorts keys by their UTF-16 code unit sequences, the
// ordering RFC 8785 mandates (differs from UTF-8 byte order for characters
// outside the BMP).
func sortKeysUTF16(keys []string) {
	slices.SortFunc(keys, func(a, b string) int {
		ua := utf16.Encode([]rune(a))
		ub := utf16.Encode([]rune(b))
		return slices.Compare(ua, ub)
	})
}

// marshalCanonicalString encodes a string with NFC normalization and no
// HTML escaping.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder appends a trailing newline.
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}
