package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"strconv"

	"github.com/spf13/cast"
)

// Wire names of the known usage record fields.
const (
	FieldID        = "id"
	FieldDMCC      = "dmcc"
	FieldIP        = "ip"
	FieldMNC       = "mnc"
	FieldBytesUsed = "bytes_used"
	FieldCellID    = "cellid"
	FieldError     = "error"
)

var ErrIDMissing = errors.New("usage record has no id")

// Fields is a partial set of usage record values keyed by wire name.
// Keys that are not known field names end up in UsageRecord.Extra.
type Fields map[string]any

// UsageRecord accumulates the values decoded from one usage line.
// A nil pointer means the field is absent and serializes as null.
type UsageRecord struct {
	ID        *int64
	DMCC      *string
	IP        *string
	MNC       *int64
	BytesUsed *int64
	CellID    *int64

	// Error is non-empty only for lines that failed to decode.
	Error string

	Extra map[string]any
}

// NewUsageRecord returns a record with every known field absent, overlaid with initial.
func NewUsageRecord(initial Fields) *UsageRecord {
	r := &UsageRecord{}
	return r.Merge(initial)
}

// Merge overwrites the record fields named in fields and returns the record.
// Known fields are converted to their static type; a value that cannot be
// converted leaves the field absent.
func (r *UsageRecord) Merge(fields Fields) *UsageRecord {
	for k, v := range fields {
		switch k {
		case FieldID:
			r.ID = optionalInt(v)
		case FieldDMCC:
			r.DMCC = optionalString(v)
		case FieldIP:
			r.IP = optionalString(v)
		case FieldMNC:
			r.MNC = optionalInt(v)
		case FieldBytesUsed:
			r.BytesUsed = optionalInt(v)
		case FieldCellID:
			r.CellID = optionalInt(v)
		case FieldError:
			r.Error = ""
			if s := optionalString(v); s != nil {
				r.Error = *s
			}
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[k] = v
		}
	}
	return r
}

// LastDigitOfID returns the final character of the decimal form of the id.
func (r *UsageRecord) LastDigitOfID() (byte, error) {
	if r.ID == nil {
		return 0, ErrIDMissing
	}
	s := strconv.FormatInt(*r.ID, 10)
	return s[len(s)-1], nil
}

// Failed reports whether the record is the placeholder of a line that failed.
func (r UsageRecord) Failed() bool {
	return r.Error != ""
}

func (r UsageRecord) Fields() Fields {
	f := make(Fields, len(r.Extra)+7)
	maps.Copy(f, r.Extra)

	f[FieldID] = r.ID
	f[FieldDMCC] = r.DMCC
	f[FieldIP] = r.IP
	f[FieldMNC] = r.MNC
	f[FieldBytesUsed] = r.BytesUsed
	f[FieldCellID] = r.CellID
	if r.Error != "" {
		f[FieldError] = r.Error
	}
	return f
}

func (r UsageRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(r.Fields()))
}

func (r *UsageRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]any

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return err
	}

	*r = UsageRecord{}
	r.Merge(fields)
	return nil
}

func optionalInt(v any) *int64 {
	switch n := v.(type) {
	case nil:
		return nil
	case *int64:
		if n == nil {
			return nil
		}
		i := *n
		return &i
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil
		}
		return &i
	case string:
		// decimal only, "010" is ten and "0x1f" is not a number
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil
		}
		return &i
	case bool:
		return nil
	}

	i, err := cast.ToInt64E(v)
	if err != nil {
		return nil
	}
	return &i
}

func optionalString(v any) *string {
	switch s := v.(type) {
	case nil:
		return nil
	case *string:
		if s == nil {
			return nil
		}
		c := *s
		return &c
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return nil
	}
	return &s
}
