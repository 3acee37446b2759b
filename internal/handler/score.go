package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"media-concierge-bot/internal/config"
	"media-concierge-bot/internal/service"
)

// ScoreHandler watches chat activity for the point economy: every
// plain text message feeds the tracker, flood warnings are replied to
// in place.
type ScoreHandler struct {
	cfg          *config.Config
	scoreService *service.ScoreService
}

// NewScoreHandler creates a new ScoreHandler.
func NewScoreHandler(cfg *config.Config, scoreService *service.ScoreService) *ScoreHandler {
	return &ScoreHandler{
		cfg:          cfg,
		scoreService: scoreService,
	}
}

// HandleText observes a plain chat message. Admin messages and
// command-like text are not tracked.
func (h *ScoreHandler) HandleText(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil || chat.Type == tele.ChatPrivate {
		return nil
	}

	if h.cfg.IsAdmin(sender.ID) {
		return nil
	}
	if strings.HasPrefix(strings.TrimSpace(c.Text()), "/") {
		return nil
	}

	warn, err := h.scoreService.ProcessMessage(ctx, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to apply flood warning")
		return c.Reply(fmt.Sprintf("⚠️ 用户 %d 发送消息过于频繁, 警告失败, 请管理员手动处理", sender.ID))
	}
	if warn == nil {
		return nil
	}

	return c.Reply(FormatWarning(warn))
}

// FormatWarning renders a warning result for chat display.
func FormatWarning(warn *service.WarnResult) string {
	return fmt.Sprintf(
		"⚠️ 用户 %d 发送消息过于频繁, 警告一次\n当前警告次数: %d\n当前积分: %d",
		warn.UserID, warn.WarningCount, warn.Score,
	)
}

// FormatSettlement renders a settlement result for chat display.
func FormatSettlement(res *service.SettlementResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "积分结算完成, 共结算 %d 分\n结算后用户积分如下:", res.TotalSettled)
	for userID, delta := range res.UserDeltas {
		fmt.Fprintf(&b, "\n用户 %d 获得: %d 积分", userID, delta)
	}
	return b.String()
}
