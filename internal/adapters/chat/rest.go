// Package chat provides the chat-delivery collaborators: a REST transport
// for a Stream-style chat service and an in-memory fake.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

// RESTTransport delivers messages and events over the chat service's HTTP
// API.
type RESTTransport struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewRESTTransport(baseURL, apiKey string) *RESTTransport {
	return &RESTTransport{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type channelMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
}

type channelMessagesResponse struct {
	Messages []channelMessage `json:"messages"`
}

// ChannelMessages queries one extra message and drops the newest entry:
// the service has already stored the message whose webhook is being served,
// and the window must not contain it twice.
func (t *RESTTransport) ChannelMessages(ctx context.Context, channelID string, limit int) ([]domain.TransportMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit+1))

	var out channelMessagesResponse
	err := t.call(ctx, http.MethodGet,
		"/channels/"+url.PathEscape(channelID)+"/messages?"+q.Encode(), nil, &out)
	if err != nil {
		return nil, fmt.Errorf("loading channel %s messages: %w", channelID, err)
	}

	msgs := out.Messages
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	result := make([]domain.TransportMessage, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, domain.TransportMessage{UserID: m.User.ID, Text: m.Text})
	}
	return result, nil
}

func (t *RESTTransport) SendMessage(ctx context.Context, channelID, senderID, text string, data map[string]any) error {
	message := map[string]any{
		"text":    text,
		"user_id": senderID,
	}
	for k, v := range data {
		message[k] = v
	}
	body := map[string]any{"message": message}

	err := t.call(ctx, http.MethodPost,
		"/channels/"+url.PathEscape(channelID)+"/message", body, nil)
	if err != nil {
		return fmt.Errorf("sending message to channel %s: %w", channelID, err)
	}

	// A reply ends the typing indicator regardless of how the turn went.
	if err := t.SendEvent(ctx, channelID, "typing.stop", senderID); err != nil {
		return fmt.Errorf("stopping typing in channel %s: %w", channelID, err)
	}
	return nil
}

func (t *RESTTransport) SendEvent(ctx context.Context, channelID, eventType, userID string) error {
	body := map[string]any{
		"event": map[string]any{
			"type":    eventType,
			"user_id": userID,
		},
	}
	err := t.call(ctx, http.MethodPost,
		"/channels/"+url.PathEscape(channelID)+"/event", body, nil)
	if err != nil {
		return fmt.Errorf("sending %s to channel %s: %w", eventType, channelID, err)
	}
	return nil
}

func (t *RESTTransport) UpsertBotUser(ctx context.Context, id, name, image string) error {
	body := map[string]any{
		"users": map[string]any{
			id: map[string]any{
				"id":    id,
				"name":  name,
				"image": image,
			},
		},
	}
	if err := t.call(ctx, http.MethodPost, "/users", body, nil); err != nil {
		return fmt.Errorf("upserting bot user %s: %w", id, err)
	}
	return nil
}

func (t *RESTTransport) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	res, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("chat service returned %d: %s", res.StatusCode, snippet)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
