package bot

import (
	"context"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/authz"
	"riskbot/internal/gateway"
	"riskbot/internal/metrics"
	"riskbot/internal/models"
	"riskbot/internal/purge"
	"riskbot/internal/storage"
)

// commandPrefixes are the characters a command may start with
const commandPrefixes = "/.!"

// commandCleanupDelay is how long a command message stays in a group
const commandCleanupDelay = time.Second

// commandSpec describes a static command
type commandSpec struct {
	adminOnly bool
}

// commandTable lists every command the bot answers to
var commandTable = map[string]commandSpec{
	"start":   {},
	"help":    {},
	"command": {},
	"risk":    {},
	"cancel":  {},
	"purge":   {},
	"admin":   {},

	"seerisk":         {adminOnly: true},
	"random":          {adminOnly: true},
	"addcondition":    {adminOnly: true},
	"listconditions":  {adminOnly: true},
	"removecondition": {adminOnly: true},
	"disable":         {adminOnly: true},
	"enable":          {adminOnly: true},
	"allban":          {adminOnly: true},
	"post":            {adminOnly: true},
	"link":            {adminOnly: true},
}

// command is a parsed command message
type command struct {
	Name string
	Args []string
	// Rest is everything after the command word, trimmed
	Rest string
}

// parseCommand recognizes "/name", ".name" and "!name" with optional
// arguments. A "/name@botname" suffix is dropped. Dot and bang prefixes
// only count for known commands so ordinary chat is left alone.
func parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || !strings.ContainsRune(commandPrefixes, rune(text[0])) {
		return command{}, false
	}

	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	name := strings.ToLower(head[1:])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return command{}, false
	}
	if _, known := commandTable[name]; !known && text[0] != '/' {
		return command{}, false
	}

	rest = strings.TrimSpace(rest)
	return command{Name: name, Args: strings.Fields(rest), Rest: rest}, true
}

func isGroup(chat *tgbotapi.Chat) bool {
	return chat != nil && (chat.IsGroup() || chat.IsSuperGroup())
}

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			b.reply(context.Background(), message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	if message.From == nil || message.Chat == nil {
		return
	}
	userID := message.From.ID
	ctx := context.Background()

	if isGroup(message.Chat) {
		b.registerGroup(ctx, message.Chat)
	}

	cmd, isCommand := parseCommand(message.Text)

	// Check if user is in a conversation. Conversations only run in private chats.
	if state := b.getState(userID); state != nil {
		switch {
		case state.Step == stepDone:
			b.clearState(userID)
		case isCommand:
			// Any command except /cancel interrupts an ongoing conversation
			if cmd.Name != "cancel" {
				b.clearState(userID)
			}
		case message.Chat.IsPrivate():
			b.handleConversation(ctx, message, state)
			return
		}
	}

	if isCommand {
		b.dispatchCommand(ctx, message, cmd)
	}
}

// dispatchCommand applies group rules and permission checks, then runs the command
func (b *Bot) dispatchCommand(ctx context.Context, message *tgbotapi.Message, cmd command) {
	chat := message.Chat
	userID := message.From.ID

	spec, known := commandTable[cmd.Name]
	if !known {
		if chat.IsPrivate() {
			b.reply(ctx, chat.ID, "Unknown command. Use /help to see available commands.")
		}
		return
	}
	metrics.Commands.WithLabelValues(cmd.Name).Inc()

	if isGroup(chat) {
		disabled, err := storage.IsCommandDisabled(ctx, b.db, chat.ID, cmd.Name)
		if err != nil {
			b.logger.Error("Failed to load disabled commands", zap.Int64("group_id", chat.ID), zap.Error(err))
		}
		if disabled {
			b.logger.Info("Ignoring disabled command",
				zap.String("command", cmd.Name),
				zap.Int64("group_id", chat.ID),
			)
			return
		}
		defer b.sched.DeleteAfter(chat.ID, message.MessageID, commandCleanupDelay)
	}

	if spec.adminOnly {
		scope := authz.ScopeAnyGroup
		if isGroup(chat) {
			scope = authz.ScopeGroup(chat.ID)
		}
		if !b.auth.IsAuthorized(ctx, userID, scope) {
			b.logger.Warn("Unauthorized command attempt",
				zap.String("command", cmd.Name),
				zap.Int64("user_id", userID),
				zap.Int64("chat_id", chat.ID),
			)
			if isGroup(chat) {
				b.reply(ctx, chat.ID, "Warning: "+userMention(message.From)+", you are not authorized to use this command.")
			} else {
				b.reply(ctx, chat.ID, "This is an admin-only command. You are not authorized.")
			}
			return
		}
	}

	switch cmd.Name {
	case "start":
		b.handleStart(ctx, message)
	case "help":
		b.handleHelp(ctx, message)
	case "command":
		b.handleCommandList(ctx, message)
	case "risk":
		b.handleRiskStart(ctx, message)
	case "cancel":
		b.handleCancel(ctx, message)
	case "purge":
		b.handlePurge(ctx, message, cmd)
	case "admin":
		b.handleAdminReport(ctx, message, cmd)
	case "seerisk":
		b.handleSeeRisk(ctx, message, cmd)
	case "random":
		b.handleRandom(ctx, message)
	case "addcondition":
		b.handleAddCondition(ctx, message, cmd)
	case "listconditions":
		b.handleListConditions(ctx, message)
	case "removecondition":
		b.handleRemoveCondition(ctx, message, cmd)
	case "disable":
		b.handleDisable(ctx, message, cmd)
	case "enable":
		b.handleEnable(ctx, message, cmd)
	case "allban":
		b.handleAllBan(ctx, message, cmd)
	case "post":
		b.handlePostStart(ctx, message)
	case "link":
		b.handleLink(ctx, message)
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if query.From == nil {
		return
	}
	userID := query.From.ID
	ctx := context.Background()

	// Answer the callback query to remove loading state
	if err := b.gw.AnswerCallback(ctx, query.ID, ""); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}

	data := query.Data
	switch {
	case strings.HasPrefix(data, "help:"):
		b.handleHelpCallback(ctx, query)
		return
	case data == purge.CallbackConfirm || data == purge.CallbackCancel:
		b.handlePurgeConfirmCallback(ctx, query)
		return
	case purge.IsVerifyData(data):
		b.handlePurgeVerifyCallback(ctx, query)
		return
	case strings.HasPrefix(data, "postrisk:"):
		b.handlePostRiskCallback(ctx, query, false)
		return
	case strings.HasPrefix(data, "posttaunt:"):
		b.handlePostRiskCallback(ctx, query, true)
		return
	}

	// Check if user is in a conversation
	state := b.getState(userID)
	if state == nil {
		b.logger.Debug("Callback without conversation", zap.Int64("user_id", userID), zap.String("data", data))
		return
	}

	// Handle callback based on prefix
	switch {
	case strings.HasPrefix(data, "risk_group:"):
		b.handleRiskGroupCallback(ctx, query, state)
	case strings.HasPrefix(data, "beg:"):
		b.handleBegCallback(ctx, query, state)
	case strings.HasPrefix(data, "post_group:"):
		b.handlePostGroupCallback(ctx, query, state)
	case data == "post:confirm" || data == "post:cancel":
		b.handlePostConfirmCallback(ctx, query, state)
	}

	// Clean up completed conversations
	if state.Step == stepDone {
		b.clearState(userID)
	}
}

// handleChatMember drops cached admin lists when a member's status
// changes. It also registers groups the bot was just added to.
func (b *Bot) handleChatMember(update *tgbotapi.ChatMemberUpdated) {
	if isGroup(&update.Chat) {
		b.registerGroup(context.Background(), &update.Chat)
	}
	if update.NewChatMember.Status != update.OldChatMember.Status {
		b.auth.Invalidate(update.Chat.ID)
		b.logger.Debug("Admin cache invalidated",
			zap.Int64("group_id", update.Chat.ID),
			zap.String("status", update.NewChatMember.Status),
		)
	}
}

// registerGroup remembers a group the bot has seen traffic in
func (b *Bot) registerGroup(ctx context.Context, chat *tgbotapi.Chat) {
	if err := b.db.RegisterGroup(ctx, models.Group{ID: chat.ID, Title: chat.Title}); err != nil {
		b.logger.Error("Failed to register group", zap.Int64("group_id", chat.ID), zap.Error(err))
	}
}

// reply sends an HTML message and logs delivery failures
func (b *Bot) reply(ctx context.Context, chatID int64, text string, keyboard ...[]gateway.Button) int {
	id, err := b.gw.SendText(ctx, chatID, text, keyboard...)
	if err != nil {
		b.logger.Warn("Failed to deliver message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return id
}

func (b *Bot) getState(userID int64) *ConversationState {
	b.statesMu.RLock()
	defer b.statesMu.RUnlock()
	return b.states[userID]
}

func (b *Bot) setState(userID int64, state *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = state
}

func (b *Bot) clearState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	delete(b.states, userID)
}
