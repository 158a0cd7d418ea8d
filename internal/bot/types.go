package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/audit"
	"riskbot/internal/authz"
	"riskbot/internal/gateway"
	"riskbot/internal/purge"
	"riskbot/internal/scheduler"
	"riskbot/internal/storage"
)

// Bot represents the Telegram bot wrapper
type Bot struct {
	api      *tgbotapi.BotAPI
	gw       gateway.Gateway
	db       storage.Storage
	auth     *authz.Authorizer
	purge    *purge.Workflow
	sched    *scheduler.Scheduler
	journal  audit.Journal
	states   map[int64]*ConversationState
	statesMu sync.RWMutex
	logger   *zap.Logger

	// draw decides a risk: true means the media is posted
	draw func() bool
	// pick returns a number in [0, n)
	pick func(n int) int
}

// ConversationState tracks the state of multi-step commands
type ConversationState struct {
	Command string
	Step    int // -1 once complete
	Data    map[string]interface{}
}

// Conversation steps
const (
	stepDone = -1

	riskStepGroup = 1
	riskStepMedia = 2
	riskStepBeg   = 3

	postStepGroup   = 1
	postStepMedia   = 2
	postStepCaption = 3
	postStepConfirm = 4
)
