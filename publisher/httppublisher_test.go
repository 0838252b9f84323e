package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valri11/usagedecoder/parser"
	"github.com/valri11/usagedecoder/types"
)

func Test_HttpPublisher(t *testing.T) {
	var received []types.UsageRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		err := json.NewDecoder(r.Body).Decode(&received)
		assert.NoError(t, err)
	}))
	defer srv.Close()

	p, err := New("http", srv.URL, nil)
	require.NoError(t, err)
	defer p.Close()

	records := parser.Parse([]string{"7291,293451", "a,s"})
	err = p.PublishRecords(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, received, 2)
	assert.Equal(t, records[0], received[0])
	assert.True(t, received[1].Failed())
}

func Test_HttpPublisher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewHttpPublisher(srv.URL)
	require.NoError(t, err)

	err = p.PublishRecords(context.Background(), parser.ParseOne("7291,293451"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func Test_New_UnknownType(t *testing.T) {
	_, err := New("carrier-pigeon", "", nil)
	require.Error(t, err)
}

func Test_RoutingKey(t *testing.T) {
	records := parser.Parse([]string{"7291,293451", ""})
	assert.Equal(t, "usage.decoded", routingKey(records[0]))
	assert.Equal(t, "usage.failed", routingKey(records[1]))
}
