package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
)

const maxBodyBytes = 1 << 20

// httpProvider is the transport shared by the REST adapters. Retries are not done
// here; the chain wraps each call in the retry policy.
type httpProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPProvider(name, baseURL, apiKey string, timeout time.Duration) httpProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return httpProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// get performs one GET and returns the body of a 200 response. Transport failures
// become network errors, other statuses become http_status errors.
func (p httpProvider) get(ctx context.Context, symbol, endpoint string, params url.Values) ([]byte, error) {
	requestURL := endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, NewMalformedError(p.name, symbol, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	observ.RecordDuration("provider_latency", latency, map[string]string{"provider": p.name})
	if err != nil {
		return nil, NewNetworkError(p.name, symbol, "request failed", redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, NewNetworkError(p.name, symbol, "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPStatusError(p.name, symbol, resp.StatusCode, string(body))
	}
	return body, nil
}

// redact strips the query string (which carries API keys) from *url.Error values.
func redact(err error) error {
	if ue, ok := err.(*url.Error); ok {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
		}
	}
	return err
}
