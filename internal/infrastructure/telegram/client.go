package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"NewsStream/internal/ports"
)

const (
	defaultAPIURL = "https://api.telegram.org"
	requestSlack  = 10 * time.Second
)

// Update is the subset of a Bot API update the bot reacts to.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Client talks to the Telegram Bot API over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ ports.Messenger = (*Client)(nil)

// NewClient registers the bot token; an empty apiURL means the public API.
func NewClient(apiURL, token string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(apiURL, "/"),
		token:   token,
		client:  httpClient,
	}, nil
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	params.Set("allowed_updates", `["message"]`)

	reqCtx, cancel := context.WithTimeout(ctx, timeout+requestSlack)
	defer cancel()

	var updates []Update
	if err := c.call(reqCtx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage posts a Markdown message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")

	reqCtx, cancel := context.WithTimeout(ctx, requestSlack)
	defer cancel()

	return c.call(reqCtx, "sendMessage", form, nil)
}

func (c *Client) call(ctx context.Context, method string, form url.Values, result any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		// url.Error would echo the endpoint, which carries the token.
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%s: decode response (%s): %w", method, resp.Status, err)
	}
	if !body.OK {
		return fmt.Errorf("%s: telegram error: %s (%s)", method, body.Description, resp.Status)
	}
	if result != nil {
		if err := json.Unmarshal(body.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}
