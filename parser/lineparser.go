package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valri11/usagedecoder/types"
)

// LineParser holds the id and raw payload of a single usage line.
type LineParser struct {
	record  *types.UsageRecord
	payload string
}

// NewLineParser splits line into "<id>,<payload>". The id must be one or more
// decimal digits and the payload, cut at the first line terminator, must not
// be empty.
func NewLineParser(line string) (*LineParser, error) {
	idStr, payload, found := strings.Cut(line, ",")
	if !found || idStr == "" || strings.ContainsFunc(idStr, func(r rune) bool { return r < '0' || r > '9' }) {
		return nil, fmt.Errorf("%w: unable to find id and value in %q", ErrInvalidInput, line)
	}

	if i := strings.IndexAny(payload, lineTerminators); i >= 0 {
		payload = payload[:i]
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: no value after id in %q", ErrInvalidInput, line)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q: %w", ErrConversion, idStr, err)
	}

	p := LineParser{
		record:  types.NewUsageRecord(types.Fields{types.FieldID: id}),
		payload: payload,
	}
	return &p, nil
}

func (p *LineParser) ID() int64 {
	return *p.record.ID
}

func (p *LineParser) Payload() string {
	return p.payload
}

// Scheme returns the layout selected by the last digit of the id.
func (p *LineParser) Scheme() (Scheme, error) {
	scheme, _, err := p.dispatch()
	return scheme, err
}

// ParseLine decodes the payload with the scheme selected by the id and
// returns the merged record.
func (p *LineParser) ParseLine() (types.UsageRecord, error) {
	_, decode, err := p.dispatch()
	if err != nil {
		return types.UsageRecord{}, err
	}

	fields, err := decode(p.payload)
	if err != nil {
		return types.UsageRecord{}, err
	}

	return *p.record.Merge(fields), nil
}

func (p *LineParser) dispatch() (Scheme, Decoder, error) {
	digit, err := p.record.LastDigitOfID()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrConversion, err)
	}

	switch digit {
	case '4':
		return SchemeExtended, DecodeExtended, nil
	case '6':
		return SchemeHex, DecodeHex, nil
	default:
		return SchemeBasic, DecodeBasic, nil
	}
}
