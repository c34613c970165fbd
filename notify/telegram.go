package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramGateway delivers messages through the Telegram bot API. Channel
// ids are Telegram chat ids.
type TelegramGateway struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegramGateway builds a gateway for the given bot token.
func NewTelegramGateway(token string) *TelegramGateway {
	return &TelegramGateway{
		token:   token,
		baseURL: defaultTelegramAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

type sendMessageRequest struct {
	ChatID      string      `json:"chat_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send posts one message. Rate limits and server errors come back as
// transient delivery errors; rejected chat ids as permanent ones.
func (g *TelegramGateway) Send(ctx context.Context, channelID, text string, actions []Action) error {
	req := sendMessageRequest{ChatID: channelID, Text: text, ParseMode: "Markdown"}
	if len(actions) > 0 {
		row := make([]inlineButton, 0, len(actions))
		for _, a := range actions {
			row = append(row, inlineButton{Text: a.Label, URL: a.URL, CallbackData: a.CallbackToken})
		}
		req.ReplyMarkup = map[string]interface{}{"inline_keyboard": [][]inlineButton{row}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return &DeliveryError{Permanent: true, Err: err}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", g.baseURL, g.token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Permanent: true, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &DeliveryError{Err: errors.Errorf("telegram responded %d", resp.StatusCode)}
	default:
		var apiResp sendMessageResponse
		desc := ""
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err == nil {
			desc = apiResp.Description
		}
		return &DeliveryError{Permanent: true, Err: errors.Errorf("telegram rejected message (%d): %s", resp.StatusCode, desc)}
	}
}
