package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"riskbot/internal/gateway"
	"riskbot/internal/models"
	"riskbot/internal/storage"
)

// fullName joins a user's first and last name
func fullName(user *tgbotapi.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" && user.UserName != "" {
		name = "@" + user.UserName
	}
	if name == "" {
		name = strconv.FormatInt(user.ID, 10)
	}
	return name
}

// userMention links to a user by their name
func userMention(user *tgbotapi.User) string {
	return gateway.Mention(user.ID, fullName(user))
}

// mediaFromMessage extracts the media a message carries. The largest
// photo size is used. allowed limits the accepted kinds.
func mediaFromMessage(message *tgbotapi.Message, allowed ...models.MediaKind) (models.Media, bool) {
	var media models.Media
	switch {
	case len(message.Photo) > 0:
		media = models.Media{Kind: models.MediaPhoto, FileID: message.Photo[len(message.Photo)-1].FileID}
	case message.Video != nil:
		media = models.Media{Kind: models.MediaVideo, FileID: message.Video.FileID}
	case message.Voice != nil:
		media = models.Media{Kind: models.MediaVoice, FileID: message.Voice.FileID}
	default:
		return models.Media{}, false
	}
	for _, kind := range allowed {
		if kind == media.Kind {
			return media, true
		}
	}
	return models.Media{}, false
}

// resolveUserArg turns "@username" or a numeric id into a user id.
// A non-empty problem is a message for the caller to show.
func (b *Bot) resolveUserArg(ctx context.Context, arg string) (id int64, problem string, err error) {
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		id, err = b.db.FindUserByUsername(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Sprintf("No risk data found for username %s.", html.EscapeString(arg)), nil
		}
		if err != nil {
			return 0, "", err
		}
		return id, "", nil
	}
	id, err = strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, "Invalid input. Please provide a valid user ID or a @username.", nil
	}
	return id, "", nil
}

// findRisk returns the index of a risk by id, or -1
func findRisk(risks []models.Risk, riskID string) int {
	for i, r := range risks {
		if r.ID == riskID {
			return i
		}
	}
	return -1
}

// int64Data reads an int64 stored in conversation data
func int64Data(state *ConversationState, key string) (int64, bool) {
	v, ok := state.Data[key].(int64)
	return v, ok
}

// stringData reads a string stored in conversation data
func stringData(state *ConversationState, key string) (string, bool) {
	v, ok := state.Data[key].(string)
	return v, ok && v != ""
}
