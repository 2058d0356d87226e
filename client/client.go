// Package client implements the chat package's collaborator interfaces over
// the communication service's HTTP and websocket API, so the session
// controller can be embedded in any Go frontend or gateway.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/campusmarket/communication-service/chat"
)

// Client talks to the communication service. It implements chat.ResponseStore,
// chat.MessageStore, chat.ServiceDirectory, chat.UserDirectory and
// chat.FeedbackService.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the API rooted at baseURL (e.g.
// "https://comm.example.edu/api/v1") authenticating with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// envelope is the service's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// doJSON performs one request and decodes the data field into out (skipped
// when out is nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var wrapped envelope
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return fmt.Errorf("client: %s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	if !wrapped.Success {
		if wrapped.Error != nil {
			return fmt.Errorf("client: %s %s: %w", method, path, wrapped.Error)
		}
		return fmt.Errorf("client: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(wrapped.Data, out); err != nil {
		return fmt.Errorf("client: %s %s: decode data: %w", method, path, err)
	}
	return nil
}

// Stores bundles the client into the wiring the chat session expects.
func (c *Client) Stores() chat.Stores {
	return chat.Stores{
		Responses: c,
		Messages:  c,
		Services:  c,
		Users:     c,
		Feedback:  c,
	}
}
