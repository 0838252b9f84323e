package parser

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// GetIP turns 8 hex characters into four dot separated decimal segments,
// one per byte: "c0a80001" is "192.168.0.1". It returns nil when any
// segment is missing or not hex.
func GetIP(hexIP string) *string {
	var segments [4]string

	for i := range segments {
		b := ParseOptionalInt(substring(hexIP, i*2, i*2+2), 16)
		if b == nil {
			return nil
		}
		segments[i] = strconv.FormatInt(*b, 10)
	}

	ip := strings.Join(segments[:], ".")
	return &ip
}

// EncodeIP is the inverse of GetIP.
func EncodeIP(b0, b1, b2, b3 byte) string {
	return hex.EncodeToString([]byte{b0, b1, b2, b3})
}
