package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"media-concierge-bot/internal/pkg/lock"
	"media-concierge-bot/internal/service"
)

// AdminHandler handles admin-only commands. Permission checks live in
// the admin middleware; handlers assume the sender is trusted.
type AdminHandler struct {
	scoreService   *service.ScoreService
	accountService *service.AccountService
	userLock       *lock.UserLock
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(scoreService *service.ScoreService, accountService *service.AccountService, userLock *lock.UserLock) *AdminHandler {
	return &AdminHandler{
		scoreService:   scoreService,
		accountService: accountService,
		userLock:       userLock,
	}
}

// HandleSettle handles the /settle command: triggers an immediate
// settlement through the same path the scheduler uses.
func (h *AdminHandler) HandleSettle(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	res, err := h.scoreService.SettleAndClear(ctx)
	if err != nil {
		log.Error().Err(err).Int64("admin_id", sender.ID).Msg("Manual settlement failed")
		return c.Reply("❌ 结算失败, 请稍后重试")
	}
	if res == nil {
		return c.Reply("结算失败, 无可结算积分")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("total", res.TotalSettled).
		Msg("Manual settlement triggered")

	return c.Send(FormatSettlement(res))
}

// HandleChange handles the /change command.
// Format: /change <delta>, as a reply to the target user's message.
func (h *AdminHandler) HandleChange(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	target, delta, err := parseChangeArgs(c)
	if err != nil {
		return c.Reply(err.Error())
	}

	h.userLock.Lock(target)
	defer h.userLock.Unlock(target)

	user, err := h.scoreService.ChangeScore(ctx, target, delta)
	if err != nil {
		log.Error().Err(err).Int64("target_id", target).Msg("Score change failed")
		return c.Reply("❌ 修改失败, 请稍后重试")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", target).
		Int64("delta", delta).
		Msg("Admin score change")

	return c.Reply(fmt.Sprintf("✅ 修改成功, 当前用户积分为 %d", user.Score))
}

// HandleWarn handles the /warn command: warns the replied-to user
// with the same escalating cost as a flood warning.
func (h *AdminHandler) HandleWarn(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	reply := c.Message().ReplyTo
	if reply == nil || reply.Sender == nil {
		return c.Reply("❌ 请回复需要警告的用户消息")
	}
	target := reply.Sender.ID

	h.userLock.Lock(target)
	defer h.userLock.Unlock(target)

	warn, err := h.scoreService.WarnUser(ctx, target)
	if err != nil {
		log.Error().Err(err).Int64("target_id", target).Msg("Manual warning failed")
		return c.Reply("❌ 警告失败, 请稍后重试")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", target).
		Int("warning_count", warn.WarningCount).
		Msg("Admin warning issued")

	return c.Reply(FormatWarning(warn))
}

// HandleBind handles the /bind command: links a media-server account
// to the replied-to user.
// Format: /bind <media_id> [name], as a reply to the target user's
// message. The initial validity is 30 days.
func (h *AdminHandler) HandleBind(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	reply := c.Message().ReplyTo
	if reply == nil || reply.Sender == nil {
		return c.Reply("❌ 请回复需要绑定账户的用户消息")
	}
	target := reply.Sender.ID

	args := strings.Fields(c.Message().Payload)
	if len(args) < 1 {
		return c.Reply("❌ 参数错误, 用法: /bind <媒体账户ID> [名称]")
	}
	mediaID := args[0]
	mediaName := ""
	if len(args) > 1 {
		mediaName = strings.Join(args[1:], " ")
	}

	h.userLock.Lock(target)
	defer h.userLock.Unlock(target)

	mu, err := h.accountService.LinkAccount(ctx, target, mediaID, mediaName, 30)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyLinked) {
			return c.Reply("❌ 该用户已绑定媒体账户")
		}
		log.Error().Err(err).Int64("target_id", target).Msg("Account binding failed")
		return c.Reply("❌ 绑定失败, 请稍后重试")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", target).
		Str("media_id", mediaID).
		Msg("Media account bound")

	return c.Reply(fmt.Sprintf("✅ 绑定成功, 账户有效期至 %s", mu.ExpiresAt.Format("2006-01-02")))
}

// parseChangeArgs extracts the target user and score delta for
// /change. The command must be a reply and carry one integer arg.
func parseChangeArgs(c tele.Context) (int64, int64, error) {
	reply := c.Message().ReplyTo
	if reply == nil || reply.Sender == nil {
		return 0, 0, fmt.Errorf("❌ 请回复需要修改积分的用户消息")
	}

	args := strings.Fields(c.Message().Payload)
	if len(args) != 1 {
		return 0, 0, fmt.Errorf("❌ 参数错误, 用法: /change <积分变化>")
	}

	delta, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("❌ 参数错误, 积分变化必须是整数")
	}

	return reply.Sender.ID, delta, nil
}
