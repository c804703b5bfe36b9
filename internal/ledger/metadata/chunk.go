package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	dErrors "certledger/pkg/domain-errors"
)

// MaxSegmentBytes is the ledger's per-string metadata limit.
const MaxSegmentBytes = 64

// ChunkedString is one logical string stored as ordered segments of at most
// MaxSegmentBytes bytes each. A value that fits in one segment has exactly one
// segment and is encoded as a plain string rather than an array.
type ChunkedString []string

// Chunk splits value into byte-bounded segments. Segments are assembled from
// whole decoded runes, so a multi-byte UTF-8 sequence never straddles a boundary.
func Chunk(value string) ChunkedString {
	if len(value) <= MaxSegmentBytes {
		return ChunkedString{value}
	}

	segments := make(ChunkedString, 0, len(value)/MaxSegmentBytes+1)
	start := 0
	for i := 0; i < len(value); {
		_, width := utf8.DecodeRuneInString(value[i:])
		if i+width-start > MaxSegmentBytes {
			segments = append(segments, value[start:i])
			start = i
		}
		i += width
	}
	return append(segments, value[start:])
}

// Join reconstructs the original string. It is the exact inverse of Chunk.
func Join(value ChunkedString) string {
	return strings.Join(value, "")
}

// String implements fmt.Stringer by joining the segments.
func (c ChunkedString) String() string {
	return Join(c)
}

// IsZero reports whether the chunked string carries no content.
func (c ChunkedString) IsZero() bool {
	return len(c) == 0 || (len(c) == 1 && c[0] == "")
}

// FromSegments validates segments read back from the ledger.
// Oversize segments yield SegmentTooLong; segments that are not well-formed
// UTF-8 on their own (a split codepoint) yield SegmentBoundaryViolation.
func FromSegments(segments []string) (ChunkedString, error) {
	out := make(ChunkedString, 0, len(segments))
	for i, seg := range segments {
		if len(seg) > MaxSegmentBytes {
			return nil, dErrors.NewReason(dErrors.CodeEncoding, dErrors.ReasonSegmentTooLong,
				fmt.Sprintf("segment %d is %d bytes, limit is %d", i, len(seg), MaxSegmentBytes))
		}
		if !utf8.ValidString(seg) {
			return nil, dErrors.NewReason(dErrors.CodeEncoding, dErrors.ReasonSegmentBoundaryViolation,
				fmt.Sprintf("segment %d splits a multi-byte character", i))
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out, nil
}

// MarshalJSON encodes a single segment as a string and several as an array.
func (c ChunkedString) MarshalJSON() ([]byte, error) {
	switch len(c) {
	case 0:
		return json.Marshal("")
	case 1:
		return json.Marshal(c[0])
	default:
		return json.Marshal([]string(c))
	}
}

// UnmarshalJSON accepts either shape and validates segment bounds.
func (c *ChunkedString) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parsed, err := FromSegments([]string{single})
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return dErrors.WrapReason(err, dErrors.CodeEncoding, dErrors.ReasonNone, "chunked string must be a string or array of strings")
	}
	parsed, err := FromSegments(many)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalCBOR mirrors MarshalJSON for transaction auxiliary data.
func (c ChunkedString) MarshalCBOR() ([]byte, error) {
	switch len(c) {
	case 0:
		return cbor.Marshal("")
	case 1:
		return cbor.Marshal(c[0])
	default:
		return cbor.Marshal([]string(c))
	}
}

// UnmarshalCBOR accepts a text string or an array of text strings.
func (c *ChunkedString) UnmarshalCBOR(data []byte) error {
	var single string
	if err := cbor.Unmarshal(data, &single); err == nil {
		parsed, err := FromSegments([]string{single})
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	var many []string
	if err := cbor.Unmarshal(data, &many); err != nil {
		return dErrors.WrapReason(err, dErrors.CodeEncoding, dErrors.ReasonNone, "chunked string must be a text string or array of text strings")
	}
	parsed, err := FromSegments(many)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// chunkedFromAny converts a loosely-typed decoded value (string or array of strings).
func chunkedFromAny(v any) (ChunkedString, error) {
	switch t := v.(type) {
	case nil:
		return ChunkedString{""}, nil
	case string:
		return FromSegments([]string{t})
	case []string:
		return FromSegments(t)
	case []any:
		segs := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, dErrors.New(dErrors.CodeEncoding, fmt.Sprintf("segment %d is not a string", i))
			}
			segs = append(segs, s)
		}
		return FromSegments(segs)
	default:
		return nil, dErrors.New(dErrors.CodeEncoding, fmt.Sprintf("unsupported metadata value type %T", v))
	}
}
