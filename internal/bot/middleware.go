// Package bot provides the Telegram bot initialization, middleware
// and handler registration.
package bot

import (
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"media-concierge-bot/internal/config"
)

// WhitelistMiddleware ignores updates from chats outside the
// configured whitelist. Private chats are always allowed; the point
// economy only tracks group messages, and activation codes must reach
// users privately.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()

			if chat == nil || sender == nil {
				return nil
			}

			if chat.Type == tele.ChatPrivate {
				return next(c)
			}

			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring update from non-whitelisted chat")
				return nil
			}

			return next(c)
		}
	}
}

// AdminMiddleware rejects commands from users not in the admin list.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ 权限不足: 需要管理员权限")
			}

			return next(c)
		}
	}
}

// LoggingMiddleware logs all incoming updates at debug level.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.Int64("user_id", sender.ID)
			}
			if chat != nil {
				logEvent = logEvent.Int64("chat_id", chat.ID).Str("chat_type", string(chat.Type))
			}
			logEvent.Str("text", c.Text()).Msg("Incoming update")

			return next(c)
		}
	}
}
