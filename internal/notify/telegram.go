package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"

	"memewars/internal/battle"
	"memewars/internal/models"
	"memewars/internal/settlement"
)

// Telegram posts settlement announcements to one chat.
type Telegram struct {
	bot    *telebot.Bot
	chatID int64
	mu     sync.Mutex
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token not set")
	}
	b, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) BattleSettled(_ context.Context, b models.Battle, res settlement.Result) error {
	if t == nil || t.bot == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.bot.Send(&telebot.Chat{ID: t.chatID}, FormatSettlement(b, res), &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
	})
	return err
}

// FormatSettlement renders the announcement text.
func FormatSettlement(b models.Battle, res settlement.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Battle #%d settled*\n", b.ID)
	fmt.Fprintf(&sb, "%s: %s → %s (%s)\n", b.TokenA, Price(b.InitialPriceA), Price(deref(b.FinalPriceA)), Growth(res.GrowthA))
	fmt.Fprintf(&sb, "%s: %s → %s (%s)\n", b.TokenB, Price(b.InitialPriceB), Price(deref(b.FinalPriceB)), Growth(res.GrowthB))
	switch res.Winner {
	case battle.TeamA:
		fmt.Fprintf(&sb, "Winner: %s\n", b.TokenA)
	case battle.TeamB:
		fmt.Fprintf(&sb, "Winner: %s\n", b.TokenB)
	default:
		sb.WriteString("Result: tie\n")
	}
	fmt.Fprintf(&sb, "Staked: %d vs %d, yield %d (fee %d)", b.TotalStakedA, b.TotalStakedB, res.TotalYield, res.ProtocolFee)
	return sb.String()
}

// Price renders an exponent -8 fixed point price.
func Price(v int64) string {
	return decimal.New(v, -8).String()
}

// Growth renders basis points as a signed percentage.
func Growth(bps int64) string {
	d := decimal.New(bps, -2)
	if bps > 0 {
		return "+" + d.StringFixed(2) + "%"
	}
	return d.StringFixed(2) + "%"
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
