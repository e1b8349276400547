package bot

import (
	"fmt"
	"strings"
)

// Query answers a free-text question about the current state by keyword.
// It reads only the published status.
func (b *Bot) Query(text string) string {
	s := b.Status()
	q := strings.ToLower(text)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(q, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("why", "decision", "decide"):
		return answerDecision(s)
	case has("guard", "block", "veto"):
		return answerGuards(s)
	case has("exit", "stop", "profit"):
		return answerExits(s)
	case has("edge", "fair"):
		return fmt.Sprintf("Fair value %dc (p=%.3f). YES edge %dc, NO edge %dc against bid %dc / ask %dc.",
			s.Fair.YesCents, s.Fair.YesProb, s.YesEdge, s.NoEdge, s.Book.BestBid, s.Book.BestAsk)
	case has("position", "balance", "pnl", "p&l", "account"):
		return answerAccount(s)
	case has("alpha", "price", "btc", "vol"):
		if !s.Alpha.Ready {
			return "No price data yet."
		}
		return fmt.Sprintf("BTC $%.2f, projected settlement $%.2f, volatility $%.0f/min (%s), %d/%d venues connected.",
			s.Alpha.WeightedPrice, s.Alpha.ProjectedSettlement, s.Alpha.VolDollarPerMin, s.Regime,
			s.Alpha.ExchangesConnected, s.Alpha.ExchangesTotal)
	}
	return summary(s)
}

func summary(s Status) string {
	state := "stopped"
	if s.Running {
		state = "running"
	}
	if s.Stale {
		state += " (stale)"
	}
	contract := "no open market"
	if s.Contract != nil {
		contract = fmt.Sprintf("%s, %.0fs left", s.Contract.MarketID, s.SecondsLeft)
	}
	return fmt.Sprintf("Bot %s in %s mode on %s. Last action: %s. Balance $%s.",
		state, s.Mode, contract, orNone(s.LastAction), s.Account.Balance.StringFixed(2))
}

func answerDecision(s Status) string {
	if s.Decision.Action == "" {
		return "No decision yet."
	}
	out := fmt.Sprintf("%s with confidence %.2f: %s.", s.Decision.Action, s.Decision.Confidence, orNone(s.Decision.Reasoning))
	if s.Decision.Override != "" {
		out += fmt.Sprintf(" Override: %s.", s.Decision.Override)
	}
	return out
}

func answerGuards(s Status) string {
	var blocked []string
	for _, g := range s.Guards {
		if g.Blocked {
			blocked = append(blocked, fmt.Sprintf("%s (%s)", g.Name, g.Detail))
		}
	}
	if len(blocked) == 0 {
		return fmt.Sprintf("All %d guards pass.", len(s.Guards))
	}
	return "Blocked by " + strings.Join(blocked, ", ") + "."
}

func answerExits(s Status) string {
	if s.Position == nil {
		return "No open position, exits are idle."
	}
	var fired []string
	for _, e := range s.Exits {
		if e.Triggered {
			fired = append(fired, e.Name)
		}
	}
	if len(fired) == 0 {
		return fmt.Sprintf("Holding %d %s, no exit triggered.", s.Position.Quantity, s.Position.Side)
	}
	return fmt.Sprintf("Holding %d %s, triggered: %s.", s.Position.Quantity, s.Position.Side, strings.Join(fired, ", "))
}

func answerAccount(s Status) string {
	a := s.Account
	out := fmt.Sprintf("Balance $%s, day P&L $%s, realized $%s, unrealized $%s, exposure $%s.",
		a.Balance.StringFixed(2), a.DayPnL.StringFixed(2), a.RealizedPnL.StringFixed(2),
		a.UnrealizedPnL.StringFixed(2), a.TotalExposure.StringFixed(2))
	for _, p := range a.Positions {
		out += fmt.Sprintf(" %s: %d %s at %.1fc.", p.MarketID, p.Quantity, p.Side, p.AvgCostCents())
	}
	return out
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
