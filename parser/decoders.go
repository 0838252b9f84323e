package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valri11/usagedecoder/types"
)

// Scheme names the field layout of a payload.
type Scheme string

const (
	SchemeBasic    Scheme = "basic"
	SchemeExtended Scheme = "extended"
	SchemeHex      Scheme = "hex"
)

// Decoder extracts the fields of one scheme from a line payload.
type Decoder func(payload string) (types.Fields, error)

// Hex scheme layout, in hex characters.
const (
	hexMNCStart       = 0
	hexBytesUsedStart = 4
	hexCellIDStart    = 8
	hexIPStart        = 16
	hexPayloadEnd     = 24
)

// characters a line payload never spans
const lineTerminators = "\n\r\u2028\u2029"

// ParseOptionalInt parses an unsigned integer in the given base. Empty input,
// signs, prefixes, foreign characters and overflow all yield nil, so signed or
// partly numeric payloads such as "-5" or "12abc" decode to null on purpose.
func ParseOptionalInt(s string, base int) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseUint(s, base, 63)
	if err != nil {
		return nil
	}
	i := int64(v)
	return &i
}

// DecodeBasic reads the payload as the decimal bytes used.
func DecodeBasic(payload string) (types.Fields, error) {
	return types.Fields{
		types.FieldBytesUsed: ParseOptionalInt(payload, 10),
	}, nil
}

// DecodeExtended reads "<dmcc>,<mnc>,<bytes_used>,<cellid>". The dmcc is the
// shortest prefix that leaves up to three comma separated digit groups;
// missing or empty groups are absent.
func DecodeExtended(payload string) (types.Fields, error) {
	if strings.ContainsAny(payload, lineTerminators) {
		return nil, fmt.Errorf("%w: extended value %q spans lines", ErrFormatMismatch, payload)
	}

	for i := 0; i <= len(payload); i++ {
		groups, ok := splitTrailingGroups(payload[i:])
		if !ok {
			continue
		}
		return types.Fields{
			types.FieldDMCC:      payload[:i],
			types.FieldMNC:       ParseOptionalInt(groups[0], 10),
			types.FieldBytesUsed: ParseOptionalInt(groups[1], 10),
			types.FieldCellID:    ParseOptionalInt(groups[2], 10),
		}, nil
	}

	return nil, fmt.Errorf("%w: unable to split extended value %q", ErrFormatMismatch, payload)
}

// splitTrailingGroups matches s against [,]digits[,]digits[,]digits where every
// part may be empty and digit runs are taken greedily.
func splitTrailingGroups(s string) ([3]string, bool) {
	var groups [3]string

	pos := 0
	for g := range groups {
		if pos < len(s) && s[pos] == ',' {
			pos++
		}
		start := pos
		for pos < len(s) && isDigit(s[pos]) {
			pos++
		}
		groups[g] = s[start:pos]
	}

	return groups, pos == len(s)
}

// DecodeHex reads the fixed layout hex payload:
//
//	[0,4)   mnc
//	[4,8)   bytes_used
//	[8,16)  cellid
//	[16,24) ip, one byte per segment
//
// A short payload leaves the uncovered fields absent.
func DecodeHex(payload string) (types.Fields, error) {
	return types.Fields{
		types.FieldMNC:       ParseOptionalInt(substring(payload, hexMNCStart, hexBytesUsedStart), 16),
		types.FieldBytesUsed: ParseOptionalInt(substring(payload, hexBytesUsedStart, hexCellIDStart), 16),
		types.FieldCellID:    ParseOptionalInt(substring(payload, hexCellIDStart, hexIPStart), 16),
		types.FieldIP:        GetIP(substring(payload, hexIPStart, hexPayloadEnd)),
	}, nil
}

// substring clamps both bounds to the string length.
func substring(s string, from, to int) string {
	from = min(from, len(s))
	to = min(to, len(s))
	return s[from:to]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
