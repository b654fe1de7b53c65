package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebalan/recordlock/service"
)

const beaconTimeout = 3 * time.Second

// transport issues lock requests against the coordinator's HTTP API.
type transport struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *zap.Logger
}

// do posts one lock request and decodes the combined response. A
// non-success HTTP status yields an error carrying the response body; the
// caller decides the failure policy (fail-open for status, logged and
// swallowed for claim/release).
func (t *transport) do(ctx context.Context, req service.Request) (service.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return service.Response{}, fmt.Errorf("failed to encode lock request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint+"/v1/locks", bytes.NewReader(body))
	if err != nil {
		return service.Response{}, fmt.Errorf("failed to build lock request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.token)

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return service.Response{}, fmt.Errorf("lock request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 64*1024))
	if err != nil {
		return service.Response{}, fmt.Errorf("failed to read lock response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return service.Response{}, fmt.Errorf("lock request failed: %s: %s",
			httpResp.Status, bytes.TrimSpace(respBody))
	}

	var resp service.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return service.Response{}, fmt.Errorf("failed to decode lock response: %w", err)
	}
	return resp, nil
}

// beacon fires one request without awaiting the outcome. Page teardown
// cannot wait on network I/O, so this is a convenience backstop only;
// correctness rests on lease expiry.
func (t *transport) beacon(req service.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()

		if _, err := t.do(ctx, req); err != nil {
			t.logger.Debug("Beacon release not delivered", zap.Error(err))
		}
	}()
}
