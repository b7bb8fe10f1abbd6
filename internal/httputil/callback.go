package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/openclaw/chat-gateway-go/internal/errors"
	"github.com/openclaw/chat-gateway-go/internal/model"
)

const callbackTimeout = 10 * time.Second

// CallbackClient POSTs pairing artifacts to the operator-configured
// endpoint. Best-effort by contract: callers log failures and move on.
type CallbackClient struct {
	endpoint string
	client   *http.Client
}

func NewCallbackClient(endpoint string) *CallbackClient {
	return &CallbackClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: callbackTimeout},
	}
}

// PostPairing delivers the pairing event to the callback endpoint.
func (c *CallbackClient) PostPairing(ctx context.Context, ev model.PairingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.CallbackFailed(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apperrors.CallbackFailed(fmt.Sprintf("endpoint returned %d", resp.StatusCode))
	}
	return nil
}
