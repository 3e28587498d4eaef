package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of an error response body ends up in a
// TransportError message.
const maxErrorBody = 512

// PostJSON marshals in, POSTs it to url and decodes a 200 response into out.
// Every failure is reported as a *TransportError tagged with provider.
func PostJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, in, out any) error {
	if client == nil {
		client = http.DefaultClient
	}

	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &TransportError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Provider: provider, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &TransportError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("api error: %s", bytes.TrimSpace(body)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Provider: provider, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return nil
}
