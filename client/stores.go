package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/campusmarket/communication-service/chat"
)

// ListSentChats implements chat.ResponseStore.
func (c *Client) ListSentChats(ctx context.Context) ([]chat.Summary, error) {
	var out []chat.Summary
	if err := c.doJSON(ctx, http.MethodGet, "/responses/chats/sent", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOwnedChats implements chat.ResponseStore.
func (c *Client) ListOwnedChats(ctx context.Context) ([]chat.Summary, error) {
	var out []chat.Summary
	if err := c.doJSON(ctx, http.MethodGet, "/responses/chats/owned", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateResponse implements chat.ResponseStore.
func (c *Client) CreateResponse(ctx context.Context, serviceID uint) (*chat.Response, error) {
	var out chat.Response
	path := fmt.Sprintf("/services/%d/responses", serviceID)
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetResponseStatus implements chat.ResponseStore.
func (c *Client) SetResponseStatus(ctx context.Context, serviceID, responseID uint, status string) error {
	path := fmt.Sprintf("/services/%d/responses/%d/status", serviceID, responseID)
	body := map[string]string{"status": status}
	return c.doJSON(ctx, http.MethodPatch, path, body, nil)
}

// DeleteResponse implements chat.ResponseStore.
func (c *Client) DeleteResponse(ctx context.Context, serviceID, responseID uint) error {
	path := fmt.Sprintf("/services/%d/responses/%d", serviceID, responseID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// ListMessages implements chat.MessageStore.
func (c *Client) ListMessages(ctx context.Context, responseID, afterID uint, limit int) ([]chat.Message, error) {
	query := url.Values{}
	if afterID > 0 {
		query.Set("after_id", fmt.Sprint(afterID))
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	path := fmt.Sprintf("/responses/%d/messages", responseID)
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out []chat.Message
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendMessage implements chat.MessageStore.
func (c *Client) AppendMessage(ctx context.Context, responseID uint, text, imageBase64 string) (*chat.Message, error) {
	body := map[string]string{}
	if text != "" {
		body["text"] = text
	}
	if imageBase64 != "" {
		body["image_base64"] = imageBase64
	}

	var out chat.Message
	path := fmt.Sprintf("/responses/%d/messages", responseID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetService implements chat.ServiceDirectory.
func (c *Client) GetService(ctx context.Context, serviceID uint) (*chat.Service, error) {
	var out chat.Service
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/services/%d", serviceID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser implements chat.UserDirectory.
func (c *Client) GetUser(ctx context.Context, userID uint) (*chat.User, error) {
	var out chat.User
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateFeedback implements chat.FeedbackService.
func (c *Client) CreateFeedback(ctx context.Context, serviceID uint, rate int, review *string) error {
	body := map[string]interface{}{"rate": rate}
	if review != nil {
		body["review"] = *review
	}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/services/%d/feedback", serviceID), body, nil)
}

// UpdateRate implements chat.FeedbackService.
func (c *Client) UpdateRate(ctx context.Context, userID uint, rate int) error {
	body := map[string]int{"rate": rate}
	return c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/users/%d/rate", userID), body, nil)
}
