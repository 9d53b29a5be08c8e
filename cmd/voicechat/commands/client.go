package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lukasbauer/kaskada/internal/store"
)

// apiClient is a thin HTTP client for the server's JSON and SSE routes.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *apiClient) httpClient() *http.Client {
	if c.http != nil {
		return c.http
	}
	return http.DefaultClient
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON sends body and decodes the response into out when out is non-nil.
func (c *apiClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

func (c *apiClient) listConversations(ctx context.Context) ([]store.Conversation, error) {
	var convs []store.Conversation
	err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &convs)
	return convs, err
}

func (c *apiClient) createConversation(ctx context.Context, title string) (*store.Conversation, error) {
	var conv store.Conversation
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations", map[string]string{"title": title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *apiClient) cancelTurn(ctx context.Context, turnID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/turns/"+turnID, nil, nil)
}

type turnRequest struct {
	Audio       []byte
	Voice       string
	InputFormat string
	Locale      string
}

// startTurn posts a recording and returns the open event stream together
// with the server-assigned turn ID.
func (c *apiClient) startTurn(ctx context.Context, conversationID string, tr turnRequest) (io.ReadCloser, string, error) {
	body := map[string]string{
		"audio":       base64.StdEncoding.EncodeToString(tr.Audio),
		"voice":       tr.Voice,
		"inputFormat": tr.InputFormat,
		"locale":      tr.Locale,
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/voice-stream", body)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, "", apiError(resp)
	}
	return resp.Body, resp.Header.Get("X-Turn-ID"), nil
}
