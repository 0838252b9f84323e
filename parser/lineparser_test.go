package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewLineParser(t *testing.T) {
	testData := []struct {
		line    string
		id      int64
		payload string
		scheme  Scheme
	}{
		{line: "7291,293451", id: 7291, payload: "293451", scheme: SchemeBasic},
		{line: "7194,b33,394,495593,192", id: 7194, payload: "b33,394,495593,192", scheme: SchemeExtended},
		{line: "316,0e893279227712cac0014aff", id: 316, payload: "0e893279227712cac0014aff", scheme: SchemeHex},
		{line: "007,5", id: 7, payload: "5", scheme: SchemeBasic},
		{line: "0,5", id: 0, payload: "5", scheme: SchemeBasic},
		{line: "4,a\nb", id: 4, payload: "a", scheme: SchemeExtended},
		{line: "6,,", id: 6, payload: ",", scheme: SchemeHex},
	}

	for _, td := range testData {
		t.Run(td.line, func(t *testing.T) {
			p, err := NewLineParser(td.line)
			require.NoError(t, err)
			assert.Equal(t, td.id, p.ID())
			assert.Equal(t, td.payload, p.Payload())

			scheme, err := p.Scheme()
			require.NoError(t, err)
			assert.Equal(t, td.scheme, scheme)
		})
	}
}

func Test_NewLineParser_Errors(t *testing.T) {
	testData := []struct {
		line     string
		expected error
	}{
		{line: "", expected: ErrInvalidInput},
		{line: "a,s", expected: ErrInvalidInput},
		{line: "1234", expected: ErrInvalidInput},
		{line: "12,", expected: ErrInvalidInput},
		{line: ",5", expected: ErrInvalidInput},
		{line: "1a,5", expected: ErrInvalidInput},
		{line: " 12,5", expected: ErrInvalidInput},
		{line: "12\n,5", expected: ErrInvalidInput},
		{line: "12,\n5", expected: ErrInvalidInput},
		{line: "99999999999999999999,5", expected: ErrConversion},
	}

	for _, td := range testData {
		t.Run(td.line, func(t *testing.T) {
			_, err := NewLineParser(td.line)
			require.ErrorIs(t, err, td.expected)
		})
	}
}

func Test_ParseLine_Dispatch(t *testing.T) {
	// the same payload decodes differently depending on the id
	payload := "0e893279227712cac0014aff"

	testData := []struct {
		id     string
		scheme Scheme
	}{
		{id: "10", scheme: SchemeBasic},
		{id: "11", scheme: SchemeBasic},
		{id: "12", scheme: SchemeBasic},
		{id: "13", scheme: SchemeBasic},
		{id: "14", scheme: SchemeExtended},
		{id: "15", scheme: SchemeBasic},
		{id: "16", scheme: SchemeHex},
		{id: "17", scheme: SchemeBasic},
		{id: "18", scheme: SchemeBasic},
		{id: "19", scheme: SchemeBasic},
	}

	for _, td := range testData {
		t.Run(td.id, func(t *testing.T) {
			p, err := NewLineParser(td.id + "," + payload)
			require.NoError(t, err)

			rec, err := p.ParseLine()
			require.NoError(t, err)
			require.NotNil(t, rec.ID)

			switch td.scheme {
			case SchemeBasic:
				assert.Nil(t, rec.BytesUsed)
				assert.Nil(t, rec.DMCC)
				assert.Nil(t, rec.MNC)
				assert.Nil(t, rec.IP)
			case SchemeExtended:
				require.NotNil(t, rec.DMCC)
				assert.Equal(t, payload, *rec.DMCC)
				assert.Nil(t, rec.IP)
			case SchemeHex:
				require.NotNil(t, rec.IP)
				assert.Equal(t, "192.1.74.255", *rec.IP)
				assert.Nil(t, rec.DMCC)
			}
			assert.False(t, rec.Failed())
		})
	}
}
