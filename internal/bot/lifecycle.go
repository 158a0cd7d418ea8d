package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/metrics"
)

// allowedUpdates are the update kinds the bot subscribes to.
// chat_member is not sent unless asked for explicitly.
var allowedUpdates = []string{"message", "edited_message", "callback_query", "chat_member", "my_chat_member"}

// Start starts the bot in polling mode
func (b *Bot) Start() error {
	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	// Create update configuration
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = allowedUpdates

	// Get updates channel
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started successfully. Waiting for updates...")

	// Handle updates (blocks here)
	b.handleUpdates(updates)
	return nil
}

// Stop stops receiving updates in polling mode
func (b *Bot) Stop() {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
}

// StartWebhook sets up the bot to receive updates via webhook
func (b *Bot) StartWebhook(webhookURL string) error {
	b.logger.Info("Setting up webhook", zap.String("webhook_url", webhookURL))

	// Configure webhook
	webhookConfig, err := tgbotapi.NewWebhook(webhookURL + "/telegram-webhook")
	if err != nil {
		b.logger.Error("Invalid webhook URL", zap.Error(err), zap.String("webhook_url", webhookURL))
		return err
	}
	webhookConfig.MaxConnections = 40
	webhookConfig.AllowedUpdates = allowedUpdates

	_, err = b.api.Request(webhookConfig)
	if err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", webhookURL))
		return err
	}

	// Get webhook info to verify
	info, err := b.api.GetWebhookInfo()
	if err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		b.logger.Info("Webhook set successfully",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
		)
	}

	b.logger.Info("Bot configured for webhook mode")
	return nil
}

// HandleWebhookUpdate processes a single update from webhook
func (b *Bot) HandleWebhookUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		metrics.Updates.WithLabelValues("message").Inc()
		b.handleMessage(update.Message)

	case update.EditedMessage != nil:
		// Edits only keep the group registry fresh
		metrics.Updates.WithLabelValues("edited_message").Inc()
		if isGroup(update.EditedMessage.Chat) {
			b.registerGroup(context.Background(), update.EditedMessage.Chat)
		}

	case update.CallbackQuery != nil:
		metrics.Updates.WithLabelValues("callback_query").Inc()
		b.handleCallbackQuery(update.CallbackQuery)

	case update.ChatMember != nil:
		metrics.Updates.WithLabelValues("chat_member").Inc()
		b.handleChatMember(update.ChatMember)

	case update.MyChatMember != nil:
		metrics.Updates.WithLabelValues("my_chat_member").Inc()
		b.handleChatMember(update.MyChatMember)

	default:
		metrics.Updates.WithLabelValues("other").Inc()
	}
}

// handleUpdates processes incoming updates from polling mode
func (b *Bot) handleUpdates(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		b.HandleWebhookUpdate(update)
	}
}
