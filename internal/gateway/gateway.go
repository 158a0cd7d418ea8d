package gateway

import (
	"context"
	"fmt"

	"riskbot/internal/models"
)

// Button is one inline keyboard button. Data is the callback payload.
type Button struct {
	Text string
	Data string
}

// Row builds a keyboard row
func Row(buttons ...Button) []Button {
	return buttons
}

// Gateway delivers messages to chats and performs moderation calls.
// Text and captions are HTML.
type Gateway interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard ...[]Button) (int, error)
	SendMedia(ctx context.Context, chatID int64, media models.Media, caption string, keyboard ...[]Button) (int, error)
	// EditText replaces the text of a sent message. The old keyboard is
	// replaced by keyboard, or removed when none is given.
	EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard ...[]Button) error
	// EditCaption is EditText for media messages
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error
	// DeleteMessage never returns an error; false means the message is still there
	DeleteMessage(ctx context.Context, chatID int64, messageID int) bool
	ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error

	// ResolveDisplayName returns an HTML mention, or a plain fallback
	ResolveDisplayName(ctx context.Context, userID int64) string
	ResolveChatTitle(ctx context.Context, chatID int64) string
	// ListGroupAdmins returns the human administrators of a group
	ListGroupAdmins(ctx context.Context, groupID int64) ([]int64, error)

	BanMember(ctx context.Context, chatID, userID int64) error
	// CreateInviteLink creates a link that can be used once
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// FallbackName is used when a user cannot be resolved
func FallbackName(userID int64) string {
	return fmt.Sprintf("user <code>%d</code>", userID)
}

// FallbackTitle is used when a chat cannot be resolved
func FallbackTitle(chatID int64) string {
	return fmt.Sprintf("Group ID %d", chatID)
}
