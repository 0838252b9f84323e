package usage

import (
	"context"
	"log/slog"
	"strings"

	"github.com/valri11/usagedecoder/parser"
	"github.com/valri11/usagedecoder/subscriber"
	"github.com/valri11/usagedecoder/types"
)

type RecordReporter interface {
	ReportRecords(ctx context.Context, records []types.UsageRecord) error
}

// LineDecoder turns broker messages of raw usage lines into published records.
type LineDecoder struct {
	parser   *parser.Parser
	reporter RecordReporter
}

func NewLineDecoder(p *parser.Parser, reporter RecordReporter) *LineDecoder {
	return &LineDecoder{
		parser:   p,
		reporter: reporter,
	}
}

// SplitLines splits a message body on newlines. A trailing newline and
// carriage returns are dropped.
func SplitLines(body []byte) []string {
	text := strings.TrimRight(string(body), "\r\n")
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func (d *LineDecoder) DecodeLines(ctx context.Context, lines []string) ([]types.UsageRecord, error) {
	records := d.parser.Parse(ctx, lines)

	err := d.reporter.ReportRecords(ctx, records)
	return records, err
}

func (d *LineDecoder) ProcessMessage(ctx context.Context, msg subscriber.Message) subscriber.MessageAction {
	lines := SplitLines(msg.Body)
	if len(lines) == 0 {
		slog.WarnContext(ctx, "empty usage message", "msgId", msg.ID)
		return subscriber.NAckReject
	}

	records, err := d.DecodeLines(ctx, lines)
	if err != nil {
		slog.ErrorContext(ctx, "report usage records", "msgId", msg.ID, "error", err)
		return subscriber.NAckRequeue
	}

	var failed int
	for _, rec := range records {
		if rec.Failed() {
			failed++
		}
	}
	slog.DebugContext(ctx, "usage message decoded",
		"msgId", msg.ID, "lines", len(records), "failed", failed)

	return subscriber.Ack
}
