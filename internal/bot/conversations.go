package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/gateway"
	"riskbot/internal/metrics"
	"riskbot/internal/models"
	"riskbot/internal/storage"
)

// handleConversation processes multi-step conversations
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	userID := message.From.ID

	switch state.Command {
	case "risk":
		b.handleRiskConversation(ctx, message, state)
	case "post":
		b.handlePostConversation(ctx, message, state)
	}

	// Clean up completed conversations
	if state.Step == stepDone {
		b.clearState(userID)
	}
}

// groupButtons builds one button per group not having command disabled.
// prefix is prepended to the group id in the callback payload.
func (b *Bot) groupButtons(ctx context.Context, groups []models.Group, command, prefix string) [][]gateway.Button {
	var keyboard [][]gateway.Button
	for _, g := range groups {
		disabled, err := storage.IsCommandDisabled(ctx, b.db, g.ID, command)
		if err != nil {
			b.logger.Error("Failed to load disabled commands", zap.Int64("group_id", g.ID), zap.Error(err))
			continue
		}
		if disabled {
			continue
		}
		title := g.Title
		if title == "" {
			title = b.gw.ResolveChatTitle(ctx, g.ID)
		}
		keyboard = append(keyboard, gateway.Row(gateway.Button{
			Text: title,
			Data: prefix + strconv.FormatInt(g.ID, 10),
		}))
	}
	return keyboard
}

// handleRiskStart initiates the risk conversation
func (b *Bot) handleRiskStart(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	if !message.Chat.IsPrivate() {
		b.reply(ctx, message.Chat.ID, "The /risk command is only available in private chat.")
		b.reply(ctx, userID, "Please use the /risk command here.")
		return
	}

	groups, err := b.db.ListGroups(ctx)
	if err != nil {
		b.logger.Error("Failed to list groups", zap.Error(err))
		b.reply(ctx, message.Chat.ID, "Could not load the list of groups. Please try again later.")
		return
	}
	if len(groups) == 0 {
		b.reply(ctx, message.Chat.ID, "The bot is not yet configured in any groups. Add me to a group first.")
		return
	}

	keyboard := b.groupButtons(ctx, groups, "risk", "risk_group:")
	if len(keyboard) == 0 {
		b.reply(ctx, message.Chat.ID, "There are no groups available for the /risk command right now.")
		return
	}

	b.setState(userID, &ConversationState{
		Command: "risk",
		Step:    riskStepGroup,
		Data:    make(map[string]interface{}),
	})
	b.reply(ctx, message.Chat.ID, "Choose a group where you want to risk your fate:", keyboard...)
}

// handleRiskConversation handles the media step of the risk conversation
func (b *Bot) handleRiskConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	if state.Step != riskStepMedia {
		return
	}
	chatID := message.Chat.ID

	groupID, ok := int64Data(state, "group_id")
	if !ok {
		b.reply(ctx, chatID, "Something went wrong. Your group selection was lost. Please start over with /risk.")
		state.Step = stepDone
		return
	}

	media, ok := mediaFromMessage(message, models.MediaPhoto, models.MediaVideo, models.MediaVoice)
	if !ok {
		b.reply(ctx, chatID, "That's not a valid media type. Please send a photo, video, or voice note.")
		return
	}

	risk := models.Risk{
		ID:        storage.NewRiskID(),
		UserID:    message.From.ID,
		Username:  message.From.UserName,
		GroupID:   groupID,
		Media:     media,
		Outcome:   models.OutcomeNotPosted,
		Timestamp: time.Now().Unix(),
	}
	unlucky := b.draw()
	b.logger.Debug("Risk drawn",
		zap.Int64("user_id", risk.UserID),
		zap.Int64("group_id", groupID),
		zap.Bool("posted", unlucky),
	)

	if unlucky {
		risk.Outcome = models.OutcomePosted
		caption := fmt.Sprintf("%s decided to risk fate and failed miserably! 😈", userMention(message.From))
		msgID, err := b.gw.SendMedia(ctx, groupID, media, caption)
		if err != nil {
			b.logger.Error("Failed to post risk", zap.String("risk_id", risk.ID), zap.Error(err))
		} else {
			risk.PostedMessageID = &msgID
		}
		if err := b.db.AddRisk(ctx, risk); err != nil {
			b.logger.Error("Failed to save risk", zap.String("risk_id", risk.ID), zap.Error(err))
		}
		metrics.Risks.WithLabelValues(string(risk.Outcome)).Inc()

		if risk.IsPublished() {
			b.reply(ctx, chatID, "You were unlucky! Your media has been posted.")
		} else {
			b.reply(ctx, chatID, "You were unlucky... but I couldn't post your media. Perhaps my permissions in the group have changed.")
		}
		state.Step = stepDone
		return
	}

	if err := b.db.AddRisk(ctx, risk); err != nil {
		b.logger.Error("Failed to save risk", zap.String("risk_id", risk.ID), zap.Error(err))
		b.reply(ctx, chatID, "You were lucky, but I could not record your risk. Please try again later.")
		state.Step = stepDone
		return
	}
	metrics.Risks.WithLabelValues(string(risk.Outcome)).Inc()

	state.Data["risk_id"] = risk.ID
	state.Step = riskStepBeg
	b.reply(ctx, chatID,
		fmt.Sprintf("You were lucky! Your %s will not be posted... this time.\nUnless you want to beg me to post it anyway? 😉", media.Kind),
		gateway.Row(gateway.Button{Text: "Please post me anyway Sir 🙏", Data: "beg:yes"}),
		gateway.Row(gateway.Button{Text: "Thanks Sir", Data: "beg:no"}),
	)
}

// handlePostStart initiates the post conversation
func (b *Bot) handlePostStart(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	if !message.Chat.IsPrivate() {
		b.reply(ctx, message.Chat.ID, "The /post command is only available in private chat.")
		b.reply(ctx, userID, "Please use the /post command here to start creating a post.")
		return
	}

	groups := b.auth.AdminGroups(ctx, userID)
	if len(groups) == 0 {
		b.reply(ctx, message.Chat.ID, "You are not an admin in any groups that I'm aware of.")
		return
	}
	keyboard := b.groupButtons(ctx, groups, "post", "post_group:")
	if len(keyboard) == 0 {
		b.reply(ctx, message.Chat.ID, "There are no available groups for you to post in. The /post command may be disabled in the groups where you are an admin.")
		return
	}

	b.setState(userID, &ConversationState{
		Command: "post",
		Step:    postStepGroup,
		Data:    make(map[string]interface{}),
	})
	b.reply(ctx, message.Chat.ID, "Please choose a group to post your message in:", keyboard...)
}

// handlePostConversation handles the media and caption steps of the post conversation
func (b *Bot) handlePostConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	chatID := message.Chat.ID

	switch state.Step {
	case postStepMedia:
		media, ok := mediaFromMessage(message, models.MediaPhoto, models.MediaVideo)
		if !ok {
			b.reply(ctx, chatID, "This is not a valid media type. Please send a photo or a video.")
			return
		}
		state.Data["media"] = media
		state.Step = postStepCaption
		b.reply(ctx, chatID, "Media received. Now, please enter the caption for your post.")

	case postStepCaption:
		if message.Text == "" {
			b.reply(ctx, chatID, "Please provide a caption for your post.")
			return
		}
		media, _ := state.Data["media"].(models.Media)
		caption := html.EscapeString(message.Text)
		state.Data["caption"] = caption

		b.reply(ctx, chatID, "Here is a preview of your post:")
		previewID, err := b.gw.SendMedia(ctx, chatID, media, caption, gateway.Row(
			gateway.Button{Text: "Confirm & Post", Data: "post:confirm"},
			gateway.Button{Text: "Cancel", Data: "post:cancel"},
		))
		if err != nil {
			b.logger.Error("Failed to send post preview", zap.Int64("user_id", message.From.ID), zap.Error(err))
			b.reply(ctx, chatID, "There was an error showing the preview. Please send the media again.")
			state.Step = postStepMedia
			return
		}
		state.Data["preview_id"] = previewID
		state.Step = postStepConfirm
	}
}
