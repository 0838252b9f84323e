package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valri11/usagedecoder/parser"
	"github.com/valri11/usagedecoder/subscriber"
	"github.com/valri11/usagedecoder/types"
)

type fakePublisher struct {
	mx      sync.Mutex
	err     error
	batches [][]types.UsageRecord
}

func (p *fakePublisher) PublishRecords(_ context.Context, records []types.UsageRecord) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, records)
	return nil
}

func (p *fakePublisher) setErr(err error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.err = err
}

func (p *fakePublisher) published() []types.UsageRecord {
	p.mx.Lock()
	defer p.mx.Unlock()
	var res []types.UsageRecord
	for _, b := range p.batches {
		res = append(res, b...)
	}
	return res
}

func Test_SplitLines(t *testing.T) {
	testData := []struct {
		name     string
		body     string
		expected []string
	}{
		{name: "single", body: "7291,293451", expected: []string{"7291,293451"}},
		{name: "trailing newline", body: "7291,293451\n", expected: []string{"7291,293451"}},
		{name: "crlf", body: "7291,293451\r\n9991,2935\r\n", expected: []string{"7291,293451", "9991,2935"}},
		{name: "blank line kept", body: "1,2\n\n3,4", expected: []string{"1,2", "", "3,4"}},
		{name: "empty", body: "", expected: nil},
		{name: "only newlines", body: "\n\r\n", expected: nil},
	}

	for _, td := range testData {
		t.Run(td.name, func(t *testing.T) {
			assert.Equal(t, td.expected, SplitLines([]byte(td.body)))
		})
	}
}

func Test_ProcessMessage(t *testing.T) {
	pub := &fakePublisher{}
	d := NewLineDecoder(parser.NewParser(), NewRecordReporter(pub))

	action := d.ProcessMessage(context.Background(), subscriber.Message{
		ID:   "m1",
		Body: []byte("4,0d39f,0,495594,214\n16,be833279000000c063e5e63d\n9991,2935\na,s\n"),
	})
	assert.Equal(t, subscriber.Ack, action)

	records := pub.published()
	require.Len(t, records, 4)
	assert.Equal(t, "0d39f", *records[0].DMCC)
	assert.Equal(t, "99.229.230.61", *records[1].IP)
	assert.Equal(t, int64(2935), *records[2].BytesUsed)
	assert.True(t, records[3].Failed())
}

func Test_ProcessMessage_Actions(t *testing.T) {
	t.Run("empty body is rejected", func(t *testing.T) {
		pub := &fakePublisher{}
		d := NewLineDecoder(parser.NewParser(), NewRecordReporter(pub))

		action := d.ProcessMessage(context.Background(), subscriber.Message{ID: "m2"})
		assert.Equal(t, subscriber.NAckReject, action)
		assert.Empty(t, pub.published())
	})

	t.Run("publish failure requeues", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("broker down")}
		d := NewLineDecoder(parser.NewParser(), NewRecordReporter(pub))

		action := d.ProcessMessage(context.Background(), subscriber.Message{
			ID:   "m3",
			Body: []byte("7291,293451"),
		})
		assert.Equal(t, subscriber.NAckRequeue, action)
	})
}

func Test_RecordReporter_Batched(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRecordReporter(pub, WithFlushInterval(20*time.Millisecond))

	ctx := context.Background()
	require.NoError(t, r.ReportRecords(ctx, parser.ParseOne("7291,293451")))
	require.NoError(t, r.ReportRecords(ctx, parser.ParseOne("9991,2935")))

	assert.Eventually(t, func() bool {
		return len(pub.published()) == 2
	}, time.Second, 5*time.Millisecond)

	records := pub.published()
	assert.Equal(t, int64(7291), *records[0].ID)
	assert.Equal(t, int64(9991), *records[1].ID)

	require.NoError(t, r.Close())
}

func Test_RecordReporter_RetryAndCloseFlush(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	r := NewRecordReporter(pub, WithFlushInterval(time.Hour))

	ctx := context.Background()
	require.NoError(t, r.ReportRecords(ctx, parser.ParseOne("7291,293451")))

	err := r.flush(ctx)
	require.Error(t, err)
	assert.Empty(t, pub.published())

	pub.setErr(nil)
	require.NoError(t, r.ReportRecords(ctx, parser.ParseOne("9991,2935")))
	require.NoError(t, r.Close())

	records := pub.published()
	require.Len(t, records, 2)
	assert.Equal(t, int64(7291), *records[0].ID)
	assert.Equal(t, int64(9991), *records[1].ID)
}

func Test_RecordReporter_MaxPending(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	r := NewRecordReporter(pub, WithFlushInterval(time.Hour), WithMaxPending(3))

	ctx := context.Background()
	for _, line := range []string{"1,1", "2,2", "3,3"} {
		require.NoError(t, r.ReportRecords(ctx, parser.ParseOne(line)))
	}
	require.Error(t, r.flush(ctx))

	require.NoError(t, r.ReportRecords(ctx, parser.Parse([]string{"4,4", "5,5"})))
	require.Error(t, r.flush(ctx))
	require.Error(t, r.flush(ctx))
	assert.Equal(t, 2, r.Dropped())

	pub.setErr(nil)
	require.NoError(t, r.Close())

	records := pub.published()
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), *records[0].ID)
	assert.Equal(t, int64(4), *records[1].ID)
	assert.Equal(t, int64(5), *records[2].ID)
}
