package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" validate:"required"`
	ChatID   string `yaml:"chat_id" validate:"required"`
	BaseURL  string `yaml:"base_url"`
}

// TelegramNotifier sends messages through the Telegram bot API.
type TelegramNotifier struct {
	config     TelegramConfig
	httpClient *http.Client
	logger     *logger.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a Telegram notifier from the given config.
func NewTelegramNotifier(config TelegramConfig, log *logger.Logger) *TelegramNotifier {
	if config.BaseURL == "" {
		config.BaseURL = defaultTelegramBaseURL
	}

	return &TelegramNotifier{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

func (t *TelegramNotifier) NotifyTradeExecuted(ctx context.Context, trade types.GridTrade) error {
	message := fmt.Sprintf(
		"✅ <b>Grid trade completed</b>\nPair: %s\nBuy: %s\nSell: %s\nQty: %s\nProfit: %s (%s%%)",
		trade.Pair,
		trade.BuyPrice.String(),
		trade.SellPrice.String(),
		trade.Quantity.String(),
		trade.Profit.StringFixed(4),
		trade.ProfitPercent.StringFixed(2),
	)

	return t.send(ctx, message)
}

func (t *TelegramNotifier) NotifyOrderFilled(ctx context.Context, fill types.Fill) error {
	message := fmt.Sprintf(
		"📥 <b>Order filled</b>\nPair: %s\nSide: %s\nPrice: %s\nQty: %s",
		fill.Order.Pair,
		fill.Order.Side,
		fill.Order.Price.String(),
		fill.Order.Quantity.String(),
	)

	return t.send(ctx, message)
}

func (t *TelegramNotifier) NotifyBotStatus(ctx context.Context, pair types.TradingPair, status string, detail string) error {
	message := fmt.Sprintf("ℹ️ <b>%s</b>\nPair: %s", status, pair)
	if detail != "" {
		message += "\n" + detail
	}

	return t.send(ctx, message)
}

func (t *TelegramNotifier) NotifyError(ctx context.Context, pair types.TradingPair, cause error) error {
	message := fmt.Sprintf("🚨 <b>Error</b>\nPair: %s\n%v", pair, cause)

	return t.send(ctx, message)
}

func (t *TelegramNotifier) NotifySummary(ctx context.Context, summary string) error {
	return t.send(ctx, summary)
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.config.ChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "failed to encode telegram message", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.config.BaseURL, t.config.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "failed to build telegram request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "failed to reach telegram", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return errors.Newf(errors.ErrCodeNotificationFailed, "telegram returned status %d: %s", resp.StatusCode, string(payload))
	}

	return nil
}
