package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTelegramURL is the Bot API base URL.
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramSink sends notifications with the Bot API sendMessage method.
// The chat id is the user id, as users talk to the bot in private chats.
type TelegramSink struct {
	token   string
	baseURL string
	client  *http.Client
	log     logrus.FieldLogger

	// Failed is called after a failed delivery, e.g. to count it.
	Failed func(err error)
}

// NewTelegramSink creates a sink for the given bot token.
// An empty baseURL uses DefaultTelegramURL.
func NewTelegramSink(token, baseURL string, logger logrus.FieldLogger) *TelegramSink {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TelegramSink{
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     logger.WithField("component", "telegram"),
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify sends message and logs failures.
func (s *TelegramSink) Notify(ctx context.Context, userID int64, message string) {
	if err := s.Send(ctx, userID, message); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("notification not delivered")
		if s.Failed != nil {
			s.Failed(err)
		}
	}
}

// Send delivers message and reports the outcome.
func (s *TelegramSink) Send(ctx context.Context, userID int64, message string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: userID, Text: message})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// The URL embeds the token; never surface it.
		return fmt.Errorf("sendMessage: request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var out sendMessageResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("sendMessage: status %d", resp.StatusCode)
	}
	if !out.OK {
		return fmt.Errorf("sendMessage: status %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}
