package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpclient "hiring-notifications/internal/common/http"
)

// Relay posts messages to the mail relay's /send-email endpoint.
type Relay struct {
	url    string
	client *httpclient.Client
}

func NewRelay(url string, timeout time.Duration) *Relay {
	return &Relay{url: url, client: httpclient.NewClient(timeout)}
}

// NewRelayWithClient is used with httptest servers.
func NewRelayWithClient(url string, client *httpclient.Client) *Relay {
	return &Relay{url: url, client: client}
}

func (r *Relay) Name() string { return "relay" }

func (r *Relay) Send(ctx context.Context, msg Message) (Result, error) {
	var res Result
	status, err := r.client.PostJSON(ctx, r.url, msg, &res)
	if err != nil {
		return Result{}, fmt.Errorf("relay request: %w", err)
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		detail := res.Error
		if detail == "" {
			detail = http.StatusText(status)
		}
		return res, fmt.Errorf("relay returned HTTP %d: %s", status, detail)
	}
	return res, nil
}
