package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/models"
)

// Telegram implements Gateway over the Bot API
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

var _ Gateway = (*Telegram)(nil)

// NewTelegram wraps an authenticated Bot API client
func NewTelegram(api *tgbotapi.BotAPI, logger *zap.Logger) *Telegram {
	return &Telegram{api: api, logger: logger.Named("gateway")}
}

func inlineKeyboard(keyboard [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// SendText sends an HTML message
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string, keyboard ...[]Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup := inlineKeyboard(keyboard); markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		t.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
		return 0, fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// SendMedia sends a photo, video or voice note by file id
func (t *Telegram) SendMedia(ctx context.Context, chatID int64, media models.Media, caption string, keyboard ...[]Button) (int, error) {
	file := tgbotapi.FileID(media.FileID)
	markup := inlineKeyboard(keyboard)

	var cfg tgbotapi.Chattable
	switch media.Kind {
	case models.MediaPhoto:
		c := tgbotapi.NewPhoto(chatID, file)
		c.Caption, c.ParseMode = caption, tgbotapi.ModeHTML
		if markup != nil {
			c.ReplyMarkup = markup
		}
		cfg = c
	case models.MediaVideo:
		c := tgbotapi.NewVideo(chatID, file)
		c.Caption, c.ParseMode = caption, tgbotapi.ModeHTML
		if markup != nil {
			c.ReplyMarkup = markup
		}
		cfg = c
	case models.MediaVoice:
		c := tgbotapi.NewVoice(chatID, file)
		c.Caption, c.ParseMode = caption, tgbotapi.ModeHTML
		if markup != nil {
			c.ReplyMarkup = markup
		}
		cfg = c
	default:
		return 0, fmt.Errorf("unsupported media kind %q", media.Kind)
	}

	sent, err := t.api.Send(cfg)
	if err != nil {
		t.logger.Warn("Failed to send media",
			zap.Int64("chat_id", chatID),
			zap.String("media_type", string(media.Kind)),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to send %s to %d: %w", media.Kind, chatID, err)
	}
	return sent.MessageID, nil
}

// EditText replaces a message's text and keyboard
func (t *Telegram) EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard ...[]Button) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = inlineKeyboard(keyboard)
	if _, err := t.api.Request(edit); err != nil {
		return fmt.Errorf("failed to edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// EditCaption replaces a media message's caption and drops its keyboard
func (t *Telegram) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	edit := tgbotapi.NewEditMessageCaption(chatID, messageID, caption)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := t.api.Request(edit); err != nil {
		return fmt.Errorf("failed to edit caption of %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// DeleteMessage deletes a message and reports whether it worked
func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) bool {
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		t.logger.Warn("Failed to delete message",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// ForwardMessage forwards a message between chats
func (t *Telegram) ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	if _, err := t.api.Send(tgbotapi.NewForward(toChatID, fromChatID, messageID)); err != nil {
		return fmt.Errorf("failed to forward message %d to %d: %w", messageID, toChatID, err)
	}
	return nil
}

func (t *Telegram) getChat(chatID int64) (tgbotapi.Chat, error) {
	return t.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
}

// ResolveDisplayName returns a tg://user mention for userID
func (t *Telegram) ResolveDisplayName(ctx context.Context, userID int64) string {
	chat, err := t.getChat(userID)
	if err != nil {
		t.logger.Debug("Could not resolve user", zap.Int64("user_id", userID), zap.Error(err))
		return FallbackName(userID)
	}
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if name == "" && chat.UserName != "" {
		name = "@" + chat.UserName
	}
	if name == "" {
		return FallbackName(userID)
	}
	return Mention(userID, name)
}

// ResolveChatTitle returns a group's title
func (t *Telegram) ResolveChatTitle(ctx context.Context, chatID int64) string {
	chat, err := t.getChat(chatID)
	if err != nil || chat.Title == "" {
		return FallbackTitle(chatID)
	}
	return chat.Title
}

// ListGroupAdmins returns the ids of non-bot administrators
func (t *Telegram) ListGroupAdmins(ctx context.Context, groupID int64) ([]int64, error) {
	members, err := t.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: groupID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list admins of %d: %w", groupID, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User == nil || m.User.IsBot {
			continue
		}
		ids = append(ids, m.User.ID)
	}
	return ids, nil
}

// BanMember bans a user from a chat
func (t *Telegram) BanMember(ctx context.Context, chatID, userID int64) error {
	_, err := t.api.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return fmt.Errorf("failed to ban %d in %d: %w", userID, chatID, err)
	}
	return nil
}

// CreateInviteLink creates a single-use invite link
func (t *Telegram) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	resp, err := t.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: chatID},
		MemberLimit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create invite link for %d: %w", chatID, err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("failed to decode invite link: %w", err)
	}
	return link.InviteLink, nil
}

// AnswerCallback acknowledges a button press
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// Mention formats an HTML link to a user
func Mention(userID int64, name string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, html.EscapeString(name))
}
