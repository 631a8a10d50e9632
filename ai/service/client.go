package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/poiesic/docrag/ai"
	"github.com/samber/mo"
)

// maxErrorBody bounds how much of an error response is kept as detail.
const maxErrorBody = 512

// postJSON sends body to url and decodes a 2xx answer into T.
// Every failure is an *ai.UpstreamError for the named service.
func postJSON[T any](ctx context.Context, client *http.Client, service, url, apiKey string, body any) mo.Result[T] {
	payload, err := json.Marshal(body)
	if err != nil {
		return mo.Err[T](&ai.UpstreamError{Service: service, Err: fmt.Errorf("marshal request: %w", err)})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return mo.Err[T](&ai.UpstreamError{Service: service, Err: fmt.Errorf("create request: %w", err)})
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" && apiKey != "none" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return mo.Err[T](&ai.UpstreamError{Service: service, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return mo.Err[T](&ai.UpstreamError{
			Service: service,
			Status:  resp.StatusCode,
			Detail:  strings.TrimSpace(string(detail)),
		})
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return mo.Err[T](&ai.UpstreamError{
			Service: service,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%w: %w", ai.ErrMalformedResponse, err),
		})
	}
	return mo.Ok(out)
}
