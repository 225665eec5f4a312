package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultAPIURL is the public Bot API endpoint
const DefaultAPIURL = "https://api.telegram.org"

// SecretTokenHeader carries the webhook secret on every update Telegram posts
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Client sends Bot API requests for one bot
type Client struct {
	apiURL string
	token  string
	client *http.Client
}

// Config holds configuration for the Bot API client
type Config struct {
	APIURL string
	Token  string
}

// NewClient creates a new Bot API client
func NewClient(config Config) *Client {
	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		apiURL: apiURL,
		token:  config.Token,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// InlineKeyboardButton is a button under a message. Exactly one of CallbackData and URL is set.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboardMarkup is the reply_markup of a message
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// SendMessageRequest represents the sendMessage parameters
type SendMessageRequest struct {
	ChatID      int64                 `json:"chat_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendDocumentRequest sends a document already stored by Telegram
type SendDocumentRequest struct {
	ChatID   int64  `json:"chat_id"`
	Document string `json:"document"` // file_id
	Caption  string `json:"caption,omitempty"`
}

// AnswerCallbackQueryRequest acknowledges a button press
type AnswerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

// SetWebhookRequest registers the update endpoint
type SetWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// APIError is a request the Bot API rejected
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// SendMessage sends a text message
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	return c.call(ctx, "sendMessage", req)
}

// SendDocument sends a document by file_id
func (c *Client) SendDocument(ctx context.Context, req SendDocumentRequest) error {
	return c.call(ctx, "sendDocument", req)
}

// AnswerCallbackQuery stops the client-side spinner of a pressed button
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error {
	return c.call(ctx, "answerCallbackQuery", req)
}

// SetWebhook points the bot's updates at url
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	return c.call(ctx, "setWebhook", req)
}

func (c *Client) call(ctx context.Context, method string, params interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// the URL embeds the token, keep it out of the error
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var result apiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to parse %s response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if !result.OK {
		return &APIError{Method: method, Code: result.ErrorCode, Description: result.Description}
	}
	return nil
}
