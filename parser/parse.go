package parser

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/valri11/usagedecoder/types"
)

// Observer is notified once per parsed line. Implementations must be safe
// for concurrent use when the parser runs with more than one worker.
type Observer interface {
	LineDecoded(ctx context.Context, scheme Scheme)
	LineFailed(ctx context.Context, err error)
}

type Parser struct {
	workers  int
	observer Observer
}

type Option func(*Parser)

// WithWorkers decodes up to n lines concurrently. Results keep input order.
func WithWorkers(n int) Option {
	return func(p *Parser) {
		p.workers = n
	}
}

func WithObserver(o Observer) Option {
	return func(p *Parser) {
		p.observer = o
	}
}

func NewParser(options ...Option) *Parser {
	p := &Parser{
		workers: 1,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Parse decodes every line independently. The result has one record per
// input line, in input order; a line that fails yields a placeholder record
// whose Error is set.
func (p *Parser) Parse(ctx context.Context, lines []string) []types.UsageRecord {
	records := make([]types.UsageRecord, len(lines))

	if p.workers <= 1 || len(lines) < 2 {
		for i, line := range lines {
			records[i] = p.parseLine(ctx, line)
		}
		return records
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, line := range lines {
		g.Go(func() error {
			records[i] = p.parseLine(ctx, line)
			return nil
		})
	}
	g.Wait()

	return records
}

func (p *Parser) parseLine(ctx context.Context, line string) types.UsageRecord {
	rec, scheme, err := decodeLine(line)
	if err != nil {
		slog.DebugContext(ctx, "skip line", "line", line, "error", err)
		if p.observer != nil {
			p.observer.LineFailed(ctx, err)
		}
		return Placeholder(err)
	}

	if p.observer != nil {
		p.observer.LineDecoded(ctx, scheme)
	}
	return rec
}

func decodeLine(line string) (types.UsageRecord, Scheme, error) {
	lp, err := NewLineParser(line)
	if err != nil {
		return types.UsageRecord{}, "", err
	}

	scheme, err := lp.Scheme()
	if err != nil {
		return types.UsageRecord{}, "", err
	}

	rec, err := lp.ParseLine()
	return rec, scheme, err
}

// Placeholder is the record returned in place of a line that failed.
func Placeholder(err error) types.UsageRecord {
	return types.UsageRecord{
		Error: err.Error(),
	}
}

var defaultParser = NewParser()

// Parse decodes lines sequentially with no observer.
func Parse(lines []string) []types.UsageRecord {
	return defaultParser.Parse(context.Background(), lines)
}

// ParseOne decodes a single line as a one element batch.
func ParseOne(line string) []types.UsageRecord {
	return Parse([]string{line})
}
