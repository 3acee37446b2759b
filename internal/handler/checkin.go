// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"media-concierge-bot/internal/pkg/lock"
	"media-concierge-bot/internal/service"
)

// CheckinHandler handles the /checkin command.
type CheckinHandler struct {
	checkinService *service.CheckinService
	userLock       *lock.UserLock
}

// NewCheckinHandler creates a new CheckinHandler.
func NewCheckinHandler(checkinService *service.CheckinService, userLock *lock.UserLock) *CheckinHandler {
	return &CheckinHandler{
		checkinService: checkinService,
		userLock:       userLock,
	}
}

// HandleCheckin handles the /checkin command. Checkins for the same
// user are serialized through the user lock so two racing commands
// cannot both pass the same-day check.
func (h *CheckinHandler) HandleCheckin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	res, err := h.checkinService.PerformCheckin(ctx, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Checkin failed")
		return c.Reply("❌ 签到失败, 请稍后重试")
	}

	if res.PrivateMessage != "" {
		if _, err := c.Bot().Send(sender, res.PrivateMessage); err != nil {
			log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to deliver private message")
			return c.Reply("⚠️ 签到成功, 但私信发送失败, 请先与机器人私聊一次后联系管理员补发")
		}
	}

	return c.Reply(res.Message)
}
