// Package gatewaytest provides an in-memory Gateway that records every call.
package gatewaytest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"riskbot/internal/gateway"
	"riskbot/internal/models"
)

// Sent is one message delivered through the fake
type Sent struct {
	ChatID    int64
	MessageID int
	Text      string
	Media     *models.Media
	Keyboard  [][]gateway.Button
}

// Deleted is one delete attempt
type Deleted struct {
	ChatID    int64
	MessageID int
	OK        bool
}

// Fake records calls. Configure its exported maps before use.
type Fake struct {
	mu     sync.Mutex
	nextID int

	Sent      []Sent
	Edited    []Sent
	Deletes   []Deleted
	Forwards  []Sent
	Bans      [][2]int64
	Callbacks []string

	// FailDelete lists message ids whose deletion fails
	FailDelete map[int]bool
	// FailSend lists chats that cannot receive messages
	FailSend map[int64]bool
	// FailBan lists chats where bans fail
	FailBan map[int64]bool
	Admins  map[int64][]int64
	Names   map[int64]string
	Titles  map[int64]string
}

var _ gateway.Gateway = (*Fake)(nil)

// New creates an empty fake
func New() *Fake {
	return &Fake{
		nextID:     1000,
		FailDelete: make(map[int]bool),
		FailSend:   make(map[int64]bool),
		FailBan:    make(map[int64]bool),
		Admins:     make(map[int64][]int64),
		Names:      make(map[int64]string),
		Titles:     make(map[int64]string),
	}
}

func (f *Fake) send(chatID int64, text string, media *models.Media, keyboard [][]gateway.Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend[chatID] {
		return 0, fmt.Errorf("chat %d unreachable", chatID)
	}
	f.nextID++
	f.Sent = append(f.Sent, Sent{ChatID: chatID, MessageID: f.nextID, Text: text, Media: media, Keyboard: keyboard})
	return f.nextID, nil
}

func (f *Fake) SendText(ctx context.Context, chatID int64, text string, keyboard ...[]gateway.Button) (int, error) {
	return f.send(chatID, text, nil, keyboard)
}

func (f *Fake) SendMedia(ctx context.Context, chatID int64, media models.Media, caption string, keyboard ...[]gateway.Button) (int, error) {
	m := media
	return f.send(chatID, caption, &m, keyboard)
}

func (f *Fake) EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard ...[]gateway.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edited = append(f.Edited, Sent{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: keyboard})
	return nil
}

func (f *Fake) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	return f.EditText(ctx, chatID, messageID, caption)
}

func (f *Fake) DeleteMessage(ctx context.Context, chatID int64, messageID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := !f.FailDelete[messageID]
	f.Deletes = append(f.Deletes, Deleted{ChatID: chatID, MessageID: messageID, OK: ok})
	return ok
}

func (f *Fake) ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend[toChatID] {
		return fmt.Errorf("chat %d unreachable", toChatID)
	}
	f.Forwards = append(f.Forwards, Sent{ChatID: toChatID, MessageID: messageID})
	return nil
}

func (f *Fake) ResolveDisplayName(ctx context.Context, userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.Names[userID]; ok {
		return gateway.Mention(userID, name)
	}
	return gateway.FallbackName(userID)
}

func (f *Fake) ResolveChatTitle(ctx context.Context, chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if title, ok := f.Titles[chatID]; ok {
		return title
	}
	return gateway.FallbackTitle(chatID)
}

func (f *Fake) ListGroupAdmins(ctx context.Context, groupID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	admins, ok := f.Admins[groupID]
	if !ok {
		return nil, errors.New("chat not found")
	}
	return append([]int64(nil), admins...), nil
}

func (f *Fake) BanMember(ctx context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailBan[chatID] {
		return fmt.Errorf("not enough rights in %d", chatID)
	}
	f.Bans = append(f.Bans, [2]int64{chatID, userID})
	return nil
}

func (f *Fake) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	return fmt.Sprintf("https://t.me/+invite%d", -chatID), nil
}

func (f *Fake) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Callbacks = append(f.Callbacks, callbackID)
	return nil
}

// SentTo returns the messages delivered to one chat
func (f *Fake) SentTo(chatID int64) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.Sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// LastTo returns the last message delivered to a chat, or an empty Sent
func (f *Fake) LastTo(chatID int64) Sent {
	msgs := f.SentTo(chatID)
	if len(msgs) == 0 {
		return Sent{}
	}
	return msgs[len(msgs)-1]
}

// Reset clears recorded calls, keeping configuration
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent, f.Edited, f.Deletes, f.Forwards, f.Bans, f.Callbacks = nil, nil, nil, nil, nil, nil
}
