// Package client talks to the forge API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idleforge/internal/game"
	"idleforge/internal/offline"
	"idleforge/internal/syncq"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsUnreachable reports whether err came from the transport rather than the
// API, meaning the command may be queued for later.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type PurchaseResponse struct {
	Result struct {
		Success         bool   `json:"success"`
		ID              string `json:"id"`
		AmountPurchased int64  `json:"amount_purchased"`
		NewLevel        int64  `json:"new_level"`
		Cost            string `json:"cost"`
	} `json:"result"`
	Balance string `json:"balance"`
}

type OfflineResponse struct {
	Resource string `json:"resource"`
	offline.Result
}

func (c *Client) Health(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", nil, nil, "")
}

func (c *Client) State(ctx context.Context) (game.Dashboard, error) {
	var out game.Dashboard
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/state", nil, &out, "")
	return out, err
}

func (c *Client) BuyProducer(ctx context.Context, id, quantity, idem string) (PurchaseResponse, error) {
	var out PurchaseResponse
	err := c.jsonRequest(ctx, http.MethodPost, BuyPath("producers", id), QuantityBody(quantity), &out, idem)
	return out, err
}

func (c *Client) BuyUpgrade(ctx context.Context, id, quantity, idem string) (PurchaseResponse, error) {
	var out PurchaseResponse
	err := c.jsonRequest(ctx, http.MethodPost, BuyPath("upgrades", id), QuantityBody(quantity), &out, idem)
	return out, err
}

func (c *Client) ClaimOffline(ctx context.Context) (OfflineResponse, error) {
	var out OfflineResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/offline/claim", nil, &out, "")
	return out, err
}

func (c *Client) Prestige(ctx context.Context, idem string) (game.PrestigeResult, error) {
	var out game.PrestigeResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/prestige", nil, &out, idem)
	return out, err
}

func (c *Client) Save(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/save", nil, nil, "")
}

func (c *Client) SyncReplay(ctx context.Context, commands []syncq.Command) ([]syncq.Result, error) {
	var out struct {
		Results []syncq.Result `json:"results"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sync/replay", map[string]any{
		"commands": commands,
	}, &out, "")
	return out.Results, err
}

func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, body, &out, idem)
	return out, err
}

func BuyPath(kind, id string) string {
	return "/v1/" + kind + "/" + url.PathEscape(id) + "/buy"
}

// QuantityBody is the request body for a purchase of quantity ("" buys one).
func QuantityBody(quantity string) map[string]any {
	quantity = strings.TrimSpace(quantity)
	if quantity == "" {
		return map[string]any{}
	}
	return map[string]any{"quantity": quantity}
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
