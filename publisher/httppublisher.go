package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/valri11/usagedecoder/types"
)

type httpPublisher struct {
	client *http.Client
	url    string
}

func NewHttpPublisher(url string) (*httpPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("http publisher: empty url")
	}
	client := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	p := httpPublisher{
		client: &client,
		url:    url,
	}
	return &p, nil
}

func (p *httpPublisher) PublishRecords(ctx context.Context, records []types.UsageRecord) error {
	jsonData, err := json.Marshal(records)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx,
		http.MethodPost,
		p.url,
		bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("publish records: unexpected status %s", resp.Status)
	}
	return nil
}

func (p *httpPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
