package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/authz"
	"riskbot/internal/gateway"
	"riskbot/internal/models"
)

// callbackMessage returns where a callback's button lives
func callbackMessage(query *tgbotapi.CallbackQuery) (chatID int64, messageID int) {
	if query.Message == nil || query.Message.Chat == nil {
		return query.From.ID, 0
	}
	return query.Message.Chat.ID, query.Message.MessageID
}

// editOrSend edits the callback's message, or sends text when there is nothing to edit
func (b *Bot) editOrSend(ctx context.Context, query *tgbotapi.CallbackQuery, text string, keyboard ...[]gateway.Button) {
	chatID, messageID := callbackMessage(query)
	if messageID != 0 {
		if err := b.gw.EditText(ctx, chatID, messageID, text, keyboard...); err == nil {
			return
		}
	}
	b.reply(ctx, chatID, text, keyboard...)
}

// handleHelpCallback navigates the help menu
func (b *Bot) handleHelpCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	back := gateway.Row(gateway.Button{Text: "« Back to Main Menu", Data: "help:back"})

	switch strings.TrimPrefix(query.Data, "help:") {
	case "general":
		b.editOrSend(ctx, query, generalHelpText, back)
	case "admin":
		if !b.auth.IsAuthorized(ctx, query.From.ID, authz.ScopeAnyGroup) {
			b.reply(ctx, query.From.ID, "You are not authorized to view this section.")
			return
		}
		b.editOrSend(ctx, query, adminHelpText, back)
	case "back":
		b.editOrSend(ctx, query, helpMenuText, b.helpMenu(ctx, query.From.ID)...)
	}
}

// parseGroupData reads the group id after prefix in a callback payload
func parseGroupData(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil
}

// handleRiskGroupCallback stores the chosen group and asks for media
func (b *Bot) handleRiskGroupCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != "risk" || state.Step != riskStepGroup {
		return
	}
	groupID, ok := parseGroupData(query.Data, "risk_group:")
	if !ok {
		b.logger.Warn("Malformed group payload", zap.String("data", query.Data))
		return
	}

	state.Data["group_id"] = groupID
	state.Step = riskStepMedia
	b.editOrSend(ctx, query, fmt.Sprintf(
		"You have selected '%s'.\n\nPlease send the media (photo, video, or voice note) you want to risk.",
		b.gw.ResolveChatTitle(ctx, groupID)))
}

// handleBegCallback posts a lucky risk anyway, or keeps it secret
func (b *Bot) handleBegCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != "risk" || state.Step != riskStepBeg {
		return
	}
	state.Step = stepDone

	if query.Data != "beg:yes" {
		b.editOrSend(ctx, query, "As you wish. Your secret is safe... for now.")
		return
	}

	riskID, ok := stringData(state, "risk_id")
	if !ok {
		b.editOrSend(ctx, query, "I seem to have lost the details of your risk. Please start over with /risk.")
		return
	}

	userID := query.From.ID
	risks, err := b.db.UserRisks(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to load user risks", zap.Int64("user_id", userID), zap.Error(err))
	}
	i := findRisk(risks, riskID)
	if i < 0 {
		b.editOrSend(ctx, query, "An error occurred: I could not find the risk data to post.")
		return
	}

	risk := risks[i]
	caption := fmt.Sprintf("%s BEGGED me to be posted without mercy 😈", userMention(query.From))
	msgID, err := b.gw.SendMedia(ctx, risk.GroupID, risk.Media, caption)
	if err != nil {
		b.logger.Error("Failed to post begged risk", zap.String("risk_id", riskID), zap.Error(err))
		b.editOrSend(ctx, query, "I couldn't post your media. Perhaps my permissions in the group have changed.")
		return
	}

	risks[i].PostedMessageID = &msgID
	if err := b.db.PutUserRisks(ctx, userID, risks); err != nil {
		b.logger.Error("Failed to save begged risk", zap.String("risk_id", riskID), zap.Error(err))
	}
	b.editOrSend(ctx, query, "You begged well enough. Your media has been posted.")
}

// handlePostGroupCallback stores the chosen group and asks for media
func (b *Bot) handlePostGroupCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != "post" || state.Step != postStepGroup {
		return
	}
	groupID, ok := parseGroupData(query.Data, "post_group:")
	if !ok {
		b.logger.Warn("Malformed group payload", zap.String("data", query.Data))
		return
	}
	if !b.auth.IsAuthorized(ctx, query.From.ID, authz.ScopeGroup(groupID)) {
		b.editOrSend(ctx, query, "You are no longer an admin of that group.")
		state.Step = stepDone
		return
	}

	state.Data["group_id"] = groupID
	state.Step = postStepMedia
	b.editOrSend(ctx, query, fmt.Sprintf(
		"You have selected '%s'.\n\nPlease send the media (photo or video) for your post.",
		b.gw.ResolveChatTitle(ctx, groupID)))
}

// handlePostConfirmCallback publishes or drops the previewed post
func (b *Bot) handlePostConfirmCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != "post" || state.Step != postStepConfirm {
		return
	}
	state.Step = stepDone
	chatID, previewID := callbackMessage(query)

	caption, _ := stringData(state, "caption")
	// Drop the buttons so the preview cannot be confirmed twice
	if previewID != 0 {
		if err := b.gw.EditCaption(ctx, chatID, previewID, caption); err != nil {
			b.logger.Debug("Failed to clear preview buttons", zap.Error(err))
		}
	}

	if query.Data == "post:cancel" {
		b.reply(ctx, chatID, "Post cancelled.")
		return
	}

	groupID, okGroup := int64Data(state, "group_id")
	media, okMedia := state.Data["media"].(models.Media)
	if !okGroup || !okMedia || caption == "" {
		b.reply(ctx, chatID, "An error occurred, some information was lost. Please start over with /post.")
		return
	}

	if _, err := b.gw.SendMedia(ctx, groupID, media, caption); err != nil {
		b.logger.Error("Failed to send post", zap.Int64("group_id", groupID), zap.Error(err))
		b.reply(ctx, chatID, "An error occurred while trying to post. I might not have the right permissions in the target group.")
		return
	}
	b.reply(ctx, chatID, "✅ Your post has been sent successfully!")
}

// parseRiskData decodes "<prefix>:<user id>:<risk id>"
func parseRiskData(data string) (userID int64, riskID string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[2] == "" {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return userID, parts[2], true
}

// handlePostRiskCallback publishes a risk from the /seerisk listing.
// With taunt set any unpurged risk may be posted, otherwise only
// drawn-to-post risks that are not published yet.
func (b *Bot) handlePostRiskCallback(ctx context.Context, query *tgbotapi.CallbackQuery, taunt bool) {
	chatID, messageID := callbackMessage(query)

	userID, riskID, ok := parseRiskData(query.Data)
	if !ok {
		b.reply(ctx, chatID, "Error: Invalid callback data.")
		return
	}

	risks, err := b.db.UserRisks(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to load user risks", zap.Int64("user_id", userID), zap.Error(err))
	}
	i := findRisk(risks, riskID)
	if i < 0 {
		b.reply(ctx, chatID, "Error: Could not find this risk. It may have been deleted.")
		return
	}
	risk := risks[i]

	if !b.auth.IsAuthorized(ctx, query.From.ID, authz.ScopeGroup(risk.GroupID)) {
		b.logger.Warn("Unauthorized risk post attempt",
			zap.Int64("user_id", query.From.ID),
			zap.String("risk_id", riskID),
		)
		b.reply(ctx, chatID, "You are not authorized to post this risk.")
		return
	}
	if risk.Purged {
		b.reply(ctx, chatID, "This risk has already been purged and cannot be posted.")
		return
	}
	if !taunt && risk.IsPublished() {
		b.reply(ctx, chatID, "This risk has already been posted.")
		return
	}

	mention := b.gw.ResolveDisplayName(ctx, userID)
	caption := fmt.Sprintf("%s decided to risk fate and failed miserably! 😈", mention)
	if taunt {
		caption = fmt.Sprintf("I feel mean, so lets see what %s sent me 😂", mention)
	}

	msgID, err := b.gw.SendMedia(ctx, risk.GroupID, risk.Media, caption)
	if err != nil {
		b.logger.Error("Failed to post risk",
			zap.String("risk_id", riskID),
			zap.Int64("group_id", risk.GroupID),
			zap.Error(err),
		)
		b.reply(ctx, chatID, "Failed to post: I may no longer be in that group or lack the permission to post there.")
		return
	}

	risks[i].PostedMessageID = &msgID
	if err := b.db.PutUserRisks(ctx, userID, risks); err != nil {
		b.logger.Error("Failed to save posted risk", zap.String("risk_id", riskID), zap.Error(err))
	}

	if messageID != 0 && query.Message.Caption != "" {
		updated := strings.Replace(html.EscapeString(query.Message.Caption), "Status: Not Posted", "Status: Posted", 1)
		if err := b.gw.EditCaption(ctx, chatID, messageID, updated); err != nil {
			b.logger.Debug("Failed to update listing caption", zap.Error(err))
		}
	}

	if taunt {
		b.reply(ctx, chatID, "Media has been posted to the group with a taunt.")
	} else {
		b.reply(ctx, chatID, "Media has been posted to the group.")
	}
}
