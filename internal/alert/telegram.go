package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apihttp "risk_calculator/pkg/http"
)

// TelegramChannel sends Markdown messages through the Bot API
type TelegramChannel struct {
	botToken string
	chatID   string
	client   *apihttp.Client
}

func NewTelegramChannel(apiURL, botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		client:   apihttp.NewClient(strings.TrimRight(apiURL, "/"), 5*time.Second, nil).WithLabel("telegram_send_message"),
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Send(ctx context.Context, alert Payload) error {
	if t.botToken == "" || t.chatID == "" {
		return nil
	}

	icon := "ℹ️"
	switch alert.Level {
	case Warning:
		icon = "⚠️"
	case Error:
		icon = "❌"
	case Critical:
		icon = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *[%s] %s*\n\n%s", icon, alert.Level, alert.Title, alert.Message)
	if len(alert.Fields) > 0 {
		b.WriteString("\n")
		for _, k := range sortedKeys(alert.Fields) {
			fmt.Fprintf(&b, "\n- *%s*: %s", k, alert.Fields[k])
		}
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "Markdown",
	}

	if _, err := t.client.Post(ctx, "/bot"+t.botToken+"/sendMessage", payload); err != nil {
		// transport errors quote the URL, which carries the token
		return errors.New("telegram api: " + strings.ReplaceAll(err.Error(), t.botToken, "[REDACTED]"))
	}
	return nil
}
