package bot

import (
	"math/rand/v2"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/audit"
	"riskbot/internal/authz"
	"riskbot/internal/gateway"
	"riskbot/internal/purge"
	"riskbot/internal/scheduler"
	"riskbot/internal/storage"
)

// Deps are the collaborators a Bot dispatches to
type Deps struct {
	Gateway    gateway.Gateway
	Storage    storage.Storage
	Authorizer *authz.Authorizer
	Purge      *purge.Workflow
	Scheduler  *scheduler.Scheduler
	Journal    audit.Journal
}

// NewBot creates a new Telegram bot. api is only used for receiving
// updates; everything outgoing goes through deps.Gateway.
func NewBot(api *tgbotapi.BotAPI, deps Deps, logger *zap.Logger) *Bot {
	if api != nil {
		logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))
	}

	return &Bot{
		api:     api,
		gw:      deps.Gateway,
		db:      deps.Storage,
		auth:    deps.Authorizer,
		purge:   deps.Purge,
		sched:   deps.Scheduler,
		journal: deps.Journal,
		states:  make(map[int64]*ConversationState),
		logger:  logger,
		draw:    func() bool { return rand.IntN(2) == 0 },
		pick:    rand.IntN,
	}
}

// GetAPI returns the bot API
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}
