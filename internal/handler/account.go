package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"media-concierge-bot/internal/pkg/lock"
	"media-concierge-bot/internal/service"
)

// AccountHandler handles profile, ranking and code redemption
// commands.
type AccountHandler struct {
	accountService *service.AccountService
	userLock       *lock.UserLock
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, userLock *lock.UserLock) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		userLock:       userLock,
	}
}

// HandleMe handles the /me command: shows the sender's score record
// and linked media account.
func (h *AccountHandler) HandleMe(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, mediaUser, err := h.accountService.GetProfile(ctx, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to load profile")
		return c.Reply("❌ 查询失败, 请稍后重试")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 用户 %d\n", user.ID)
	fmt.Fprintf(&b, "积分: %d\n", user.Score)
	fmt.Fprintf(&b, "签到次数: %d\n", user.CheckinCount)
	fmt.Fprintf(&b, "警告次数: %d", user.WarningCount)

	if mediaUser != nil {
		status := "✅ 正常"
		if mediaUser.IsBanned {
			status = "🚫 封禁"
		}
		fmt.Fprintf(&b, "\n\n🎬 媒体账户: %s\n状态: %s\n到期时间: %s",
			mediaUser.MediaName, status, mediaUser.ExpiresAt.Format("2006-01-02"))
	} else {
		b.WriteString("\n\n⚠️ 尚未绑定媒体账户")
	}

	if renew, err := h.accountService.GetRenewScore(ctx); err == nil {
		fmt.Fprintf(&b, "\n当前续期价格: %d 分/月", renew)
	}

	return c.Reply(b.String())
}

// HandleRank handles the /rank command: shows the top 10 users by
// score.
func (h *AccountHandler) HandleRank(c tele.Context) error {
	ctx := context.Background()

	users, err := h.accountService.GetTopUsers(ctx, 10)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load ranking")
		return c.Reply("❌ 查询失败, 请稍后重试")
	}
	if len(users) == 0 {
		return c.Reply("暂无排名数据")
	}

	var b strings.Builder
	b.WriteString("🏆 积分排行榜\n")
	for i, user := range users {
		fmt.Fprintf(&b, "\n%d. 用户 %d - %d 分", i+1, user.ID, user.Score)
	}

	return c.Reply(b.String())
}

// HandleRedeem handles the /redeem command.
// Format: /redeem <code>, extends the sender's linked media account.
func (h *AccountHandler) HandleRedeem(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	codeStr := strings.TrimSpace(c.Message().Payload)
	if codeStr == "" {
		return c.Reply("❌ 参数错误, 用法: /redeem <兑换码>")
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	res, err := h.accountService.RedeemCode(ctx, sender.ID, codeStr)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Code redemption failed")
		return c.Reply("❌ 兑换失败, 请稍后重试")
	}

	return c.Reply(res.Message)
}
