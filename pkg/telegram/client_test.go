package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(42), req.ChatID)
		assert.Equal(t, "hello", req.Text)
		require.NotNil(t, req.ReplyMarkup)
		assert.Equal(t, "confirm_booking", req.ReplyMarkup.InlineKeyboard[0][0].CallbackData)

		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIURL: server.URL, Token: "TOKEN"})
	err := client.SendMessage(context.Background(), SendMessageRequest{
		ChatID: 42,
		Text:   "hello",
		ReplyMarkup: &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
			{{Text: "Confirm", CallbackData: "confirm_booking"}},
		}},
	})
	assert.NoError(t, err)
}

func TestSendMessage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIURL: server.URL, Token: "TOKEN"})
	err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 1, Text: "x"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
	assert.Equal(t, "sendMessage", apiErr.Method)
}

func TestCall_TransportErrorHidesToken(t *testing.T) {
	client := NewClient(Config{APIURL: "http://127.0.0.1:1", Token: "SECRET-TOKEN"})

	err := client.SendDocument(context.Background(), SendDocumentRequest{ChatID: 1, Document: "f"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}

func TestSetWebhook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/setWebhook", r.URL.Path)
		var req SetWebhookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://bot.example.com/webhook", req.URL)
		assert.Equal(t, "s3cret", req.SecretToken)
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIURL: server.URL, Token: "TOKEN"})
	assert.NoError(t, client.SetWebhook(context.Background(), SetWebhookRequest{
		URL:         "https://bot.example.com/webhook",
		SecretToken: "s3cret",
	}))
}

func TestMessageCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    string
		ok      bool
	}{
		{"/start", "start", "", true},
		{"/booking@TicketBot", "booking", "", true},
		{"/AddRoute Berlin;Munich;20", "addroute", "Berlin;Munich;20", true},
		{"/markpaid   17 ", "markpaid", "17", true},
		{"Berlin", "", "", false},
		{"/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			m := &Message{Text: tt.text}
			command, args, ok := m.Command()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.command, command)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).FullName())
	assert.Equal(t, "Ada", (&User{FirstName: "Ada"}).FullName())
}
