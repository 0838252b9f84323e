/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/valri11/usagedecoder/parser"
	"github.com/valri11/usagedecoder/types"
)

func init() {
	rootCmd.AddCommand(newDecodeCmd())
}

func newDecodeCmd() *cobra.Command {
	var (
		workers int
		sample  int
		seed    int64
	)

	decodeCmd := &cobra.Command{
		Use:   "decode [line...]",
		Short: "Decode usage lines given as arguments or read from stdin",
		Long: `decode prints one JSON record per input line.

Lines come from the arguments, or from stdin when no argument is given.
With --sample N it prints N generated hex layout lines instead, handy as
input for parseserver and decodeworker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if sample > 0 {
				if seed == 0 {
					seed = time.Now().UnixNano()
				}
				for _, line := range sampleLines(sample, rand.New(rand.NewSource(seed))) {
					fmt.Fprintln(out, line)
				}
				return nil
			}

			p := parser.NewParser(parser.WithWorkers(workers))
			ctx := cmd.Context()

			if len(args) > 0 {
				return writeRecords(out, p.Parse(ctx, args))
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if err := writeRecords(out, p.Parse(ctx, []string{scanner.Text()})); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}

	decodeCmd.Flags().IntVar(&workers, "workers", 1, "lines decoded concurrently")
	decodeCmd.Flags().IntVar(&sample, "sample", 0, "print N generated hex layout lines and exit")
	decodeCmd.Flags().Int64Var(&seed, "seed", 0, "random seed for --sample (0 - time based)")

	return decodeCmd
}

func writeRecords(w io.Writer, records []types.UsageRecord) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// sampleLines generates hex layout lines: ids end in 6, payload is
// mnc(4) bytes_used(4) cellid(8) ip(8) hex digits.
func sampleLines(n int, rnd *rand.Rand) []string {
	lines := make([]string, 0, n)
	for range n {
		id := rnd.Intn(100000)*10 + 6
		ip := parser.EncodeIP(
			byte(rnd.Intn(256)), byte(rnd.Intn(256)),
			byte(rnd.Intn(256)), byte(rnd.Intn(256)))

		lines = append(lines, fmt.Sprintf("%d,%04x%04x%08x%s",
			id, rnd.Intn(0x10000), rnd.Intn(0x10000), rnd.Uint32(), ip))
	}
	return lines
}
