package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valri11/usagedecoder/types"
)

func ptr[T any](v T) *T {
	return &v
}

func Test_ParseOptionalInt(t *testing.T) {
	testData := []struct {
		in       string
		base     int
		expected *int64
	}{
		{in: "293451", base: 10, expected: ptr(int64(293451))},
		{in: "0", base: 10, expected: ptr(int64(0))},
		{in: "", base: 10, expected: nil},
		{in: "12abc", base: 10, expected: nil},
		{in: "-1", base: 10, expected: nil},
		{in: "-5", base: 10, expected: nil},
		{in: "+1", base: 10, expected: nil},
		{in: "99999999999999999999", base: 10, expected: nil},
		{in: "0e89", base: 16, expected: ptr(int64(3721))},
		{in: "FF", base: 16, expected: ptr(int64(255))},
		{in: "0x1f", base: 16, expected: nil},
		{in: "zz", base: 16, expected: nil},
	}

	for _, td := range testData {
		t.Run(td.in, func(t *testing.T) {
			assert.Equal(t, td.expected, ParseOptionalInt(td.in, td.base))
		})
	}
}

func Test_DecodeBasic(t *testing.T) {
	testData := []struct {
		payload  string
		expected *int64
	}{
		{payload: "293451", expected: ptr(int64(293451))},
		{payload: "2935", expected: ptr(int64(2935))},
		{payload: "s", expected: nil},
		{payload: "12,34", expected: nil},
		{payload: "12abc", expected: nil},
		{payload: "-5", expected: nil},
	}

	for _, td := range testData {
		t.Run(td.payload, func(t *testing.T) {
			fields, err := DecodeBasic(td.payload)
			require.NoError(t, err)
			require.Len(t, fields, 1)
			assert.Equal(t, td.expected, fields[types.FieldBytesUsed])
		})
	}
}

func Test_DecodeExtended(t *testing.T) {
	testData := []struct {
		payload   string
		dmcc      string
		mnc       *int64
		bytesUsed *int64
		cellID    *int64
	}{
		{
			payload:   "b33,394,495593,192",
			dmcc:      "b33",
			mnc:       ptr(int64(394)),
			bytesUsed: ptr(int64(495593)),
			cellID:    ptr(int64(192)),
		},
		{
			payload:   "0d39f,0,495594,214",
			dmcc:      "0d39f",
			mnc:       ptr(int64(0)),
			bytesUsed: ptr(int64(495594)),
			cellID:    ptr(int64(214)),
		},
		{
			payload:   "b33,394",
			dmcc:      "b",
			mnc:       ptr(int64(33)),
			bytesUsed: ptr(int64(394)),
		},
		{
			payload: "abc",
			dmcc:    "abc",
		},
		{
			payload: "abc,,,",
			dmcc:    "abc",
		},
		{
			payload:   "12,34",
			dmcc:      "",
			mnc:       ptr(int64(12)),
			bytesUsed: ptr(int64(34)),
		},
		{
			payload:   "x,1,2,3,4",
			dmcc:      "x,1",
			mnc:       ptr(int64(2)),
			bytesUsed: ptr(int64(3)),
			cellID:    ptr(int64(4)),
		},
		{
			payload: "us east,7",
			dmcc:    "us east",
			mnc:     ptr(int64(7)),
		},
	}

	for _, td := range testData {
		t.Run(td.payload, func(t *testing.T) {
			fields, err := DecodeExtended(td.payload)
			require.NoError(t, err)
			assert.Equal(t, td.dmcc, fields[types.FieldDMCC])
			assert.Equal(t, td.mnc, fields[types.FieldMNC])
			assert.Equal(t, td.bytesUsed, fields[types.FieldBytesUsed])
			assert.Equal(t, td.cellID, fields[types.FieldCellID])
			assert.NotContains(t, fields, types.FieldIP)
		})
	}

	t.Run("multi line value", func(t *testing.T) {
		_, err := DecodeExtended("b33\n394")
		require.ErrorIs(t, err, ErrFormatMismatch)
	})
}

func Test_DecodeHex(t *testing.T) {
	testData := []struct {
		payload   string
		mnc       *int64
		bytesUsed *int64
		cellID    *int64
		ip        *string
	}{
		{
			payload:   "0e893279227712cac0014aff",
			mnc:       ptr(int64(3721)),
			bytesUsed: ptr(int64(12921)),
			cellID:    ptr(int64(578228938)),
			ip:        ptr("192.1.74.255"),
		},
		{
			payload:   "be833279000000c063e5e63d",
			mnc:       ptr(int64(48771)),
			bytesUsed: ptr(int64(12921)),
			cellID:    ptr(int64(192)),
			ip:        ptr("99.229.230.61"),
		},
		{
			payload:   "0e893279227712cac0014affdeadbeef",
			mnc:       ptr(int64(3721)),
			bytesUsed: ptr(int64(12921)),
			cellID:    ptr(int64(578228938)),
			ip:        ptr("192.1.74.255"),
		},
		{
			payload: "0e89",
			mnc:     ptr(int64(3721)),
		},
		{
			payload:   "0e893279227712cac001",
			mnc:       ptr(int64(3721)),
			bytesUsed: ptr(int64(12921)),
			cellID:    ptr(int64(578228938)),
		},
		{
			payload:   "zz893279227712cac0014aff",
			bytesUsed: ptr(int64(12921)),
			cellID:    ptr(int64(578228938)),
			ip:        ptr("192.1.74.255"),
		},
		{
			payload: "not hex at all, really",
		},
	}

	for _, td := range testData {
		t.Run(td.payload, func(t *testing.T) {
			fields, err := DecodeHex(td.payload)
			require.NoError(t, err)
			assert.Equal(t, td.mnc, fields[types.FieldMNC])
			assert.Equal(t, td.bytesUsed, fields[types.FieldBytesUsed])
			assert.Equal(t, td.cellID, fields[types.FieldCellID])
			assert.Equal(t, td.ip, fields[types.FieldIP])
			assert.NotContains(t, fields, types.FieldDMCC)
		})
	}
}
