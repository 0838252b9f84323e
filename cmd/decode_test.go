package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valri11/usagedecoder/parser"
	"github.com/valri11/usagedecoder/types"
)

func runDecodeCmd(t *testing.T, stdin string, args ...string) []string {
	t.Helper()

	cmd := newDecodeCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetArgs(args)

	require.NoError(t, cmd.Execute())

	var lines []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func Test_DecodeCmd(t *testing.T) {
	t.Run("arguments", func(t *testing.T) {
		out := runDecodeCmd(t, "", "7291,293451", "bad")
		require.Len(t, out, 2)

		var rec types.UsageRecord
		require.NoError(t, json.Unmarshal([]byte(out[0]), &rec))
		assert.Equal(t, int64(7291), *rec.ID)
		assert.Equal(t, int64(293451), *rec.BytesUsed)

		require.NoError(t, json.Unmarshal([]byte(out[1]), &rec))
		assert.True(t, rec.Failed())
	})

	t.Run("stdin", func(t *testing.T) {
		out := runDecodeCmd(t, "7194,b33,394,495593,192\n316,0e893279227712cac0014aff\n")
		require.Len(t, out, 2)

		var rec types.UsageRecord
		require.NoError(t, json.Unmarshal([]byte(out[0]), &rec))
		assert.Equal(t, "b33", *rec.DMCC)

		require.NoError(t, json.Unmarshal([]byte(out[1]), &rec))
		assert.Equal(t, "192.1.74.255", *rec.IP)
	})

	t.Run("sample", func(t *testing.T) {
		out := runDecodeCmd(t, "", "--sample", "5", "--seed", "42")
		require.Len(t, out, 5)

		for _, rec := range parser.Parse(out) {
			require.False(t, rec.Failed(), rec.Error)
			assert.NotNil(t, rec.IP)
			assert.NotNil(t, rec.CellID)
		}
	})
}

func Test_SampleLines(t *testing.T) {
	lines := sampleLines(50, rand.New(rand.NewSource(1)))
	require.Len(t, lines, 50)

	for _, line := range lines {
		lp, err := parser.NewLineParser(line)
		require.NoError(t, err)

		scheme, err := lp.Scheme()
		require.NoError(t, err)
		assert.Equal(t, parser.SchemeHex, scheme)
		assert.Len(t, lp.Payload(), 24)
	}
}
