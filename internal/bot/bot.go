package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"media-concierge-bot/internal/config"
	"media-concierge-bot/internal/handler"
	"media-concierge-bot/internal/pkg/lock"
	"media-concierge-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	checkinHandler *handler.CheckinHandler
	scoreHandler   *handler.ScoreHandler
	adminHandler   *handler.AdminHandler
	accountHandler *handler.AccountHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config         *config.Config
	CheckinService *service.CheckinService
	ScoreService   *service.ScoreService
	AccountService *service.AccountService
	UserLock       *lock.UserLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,

		checkinHandler: handler.NewCheckinHandler(deps.CheckinService, deps.UserLock),
		scoreHandler:   handler.NewScoreHandler(deps.Config, deps.ScoreService),
		adminHandler:   handler.NewAdminHandler(deps.ScoreService, deps.AccountService, deps.UserLock),
		accountHandler: handler.NewAccountHandler(deps.AccountService, deps.UserLock),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and message handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/checkin", b.checkinHandler.HandleCheckin)
	b.bot.Handle("/me", b.accountHandler.HandleMe)
	b.bot.Handle("/rank", b.accountHandler.HandleRank)
	b.bot.Handle("/redeem", b.accountHandler.HandleRedeem)

	// Admin handlers behind the permission middleware
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/settle", b.adminHandler.HandleSettle)
	adminGroup.Handle("/change", b.adminHandler.HandleChange)
	adminGroup.Handle("/warn", b.adminHandler.HandleWarn)
	adminGroup.Handle("/bind", b.adminHandler.HandleBind)

	// Every remaining text message feeds the activity tracker.
	b.bot.Handle(tele.OnText, b.scoreHandler.HandleText)
}

// Start begins polling for updates. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Bot polling started")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	b.bot.Stop()
}

// NotifyChat sends a plain message to the configured main chat. Used
// by the scheduler for settlement reports.
func (b *Bot) NotifyChat(text string) {
	if b.cfg.Bot.ChatID == 0 {
		log.Warn().Msg("No main chat configured, dropping notification")
		return
	}
	if _, err := b.bot.Send(tele.ChatID(b.cfg.Bot.ChatID), text); err != nil {
		log.Error().Err(err).Msg("Failed to send chat notification")
	}
}
