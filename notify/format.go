package notify

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/lendwatch/lendwatch/chains"
	"github.com/lendwatch/lendwatch/config/params"
	"github.com/lendwatch/lendwatch/db"
	"github.com/lendwatch/lendwatch/events"
)

// formatPercent renders a percentage with up to two decimal places.
func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// formatAmount renders an underlying-unit amount with K/M suffixes.
func formatAmount(v float64) string {
	switch {
	case v >= 1e6:
		return humanize.FtoaWithDigits(v/1e6, 2) + "M"
	case v >= 1e3:
		return humanize.FtoaWithDigits(v/1e3, 2) + "K"
	default:
		return humanize.FtoaWithDigits(v, 2)
	}
}

// healthQualifier maps pool utilization to the displayed health band.
func healthQualifier(utilization float64) string {
	switch {
	case utilization < 80:
		return "healthy"
	case utilization < 95:
		return "active"
	default:
		return "constrained"
	}
}

func poolDeepLink(pool *db.PoolRecord) Action {
	return Action{
		Label: "Open pool",
		URL:   fmt.Sprintf("%s/pool/%d/%s", params.Get().AppBaseURL, pool.ChainID, pool.Address),
	}
}

func formatAlertMatch(pool *db.PoolRecord, alert *db.AlertWithUser) (string, []Action) {
	var b strings.Builder
	b.WriteString("*New pool matches your alert*\n\n")
	fmt.Fprintf(&b, "*%s* on %s\n", pool.Name, chains.DisplayName(pool.ChainID))
	fmt.Fprintf(&b, "Asset: %s\n", pool.UnderlyingSymbol)
	fmt.Fprintf(&b, "Supply APY: %s (your minimum: %s)\n", formatPercent(pool.APY), formatPercent(alert.MinAPY))
	fmt.Fprintf(&b, "TVL: %s %s\n", formatAmount(pool.TVL), pool.UnderlyingSymbol)
	fmt.Fprintf(&b, "Pool health: %s (%s utilized)", healthQualifier(pool.Utilization), formatPercent(pool.Utilization))
	return b.String(), []Action{poolDeepLink(pool)}
}

func formatProtocolLaunch(chainID uint64) (string, []Action) {
	var b strings.Builder
	name := chains.DisplayName(chainID)
	fmt.Fprintf(&b, "*Protocol live on %s*\n\n", name)
	fmt.Fprintf(&b, "The first lending pool on %s is now active. Browse the new markets to get in early.", name)
	return b.String(), []Action{{
		Label: "Browse pools",
		URL:   fmt.Sprintf("%s/chain/%d", params.Get().AppBaseURL, chainID),
	}}
}

func formatAPYChange(ev events.APYChange, pool *db.PoolRecord) (string, []Action) {
	delta := ev.New - ev.Old
	direction := "up"
	if delta < 0 {
		direction = "down"
	}
	var b strings.Builder
	if ev.Major {
		fmt.Fprintf(&b, "*Large APY move on your position*\n\n")
	} else {
		fmt.Fprintf(&b, "*APY update on your position*\n\n")
	}
	fmt.Fprintf(&b, "*%s* on %s\n", ev.PoolName, chains.DisplayName(ev.Position.ChainID))
	fmt.Fprintf(&b, "Supply APY is %s: %s → %s (Δ %s)\n",
		direction, formatPercent(ev.Old), formatPercent(ev.New), formatPercent(delta))
	if pool != nil {
		fmt.Fprintf(&b, "Asset: %s\n", pool.UnderlyingSymbol)
		fmt.Fprintf(&b, "Pool health: %s (%s utilized)", healthQualifier(pool.Utilization), formatPercent(pool.Utilization))
		return b.String(), []Action{poolDeepLink(pool)}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatPositionClosed(ev events.PositionClosed, pool *db.PoolRecord) (string, []Action) {
	var b strings.Builder
	b.WriteString("*Position closed*\n\n")
	fmt.Fprintf(&b, "*%s* on %s\n", ev.PoolName, chains.DisplayName(ev.Position.ChainID))
	fmt.Fprintf(&b, "Your share balance dropped to zero. Final tracked value: %s", formatAmount(ev.Position.Value))
	if pool != nil {
		fmt.Fprintf(&b, " %s", pool.UnderlyingSymbol)
		return b.String(), []Action{poolDeepLink(pool)}
	}
	return b.String(), nil
}
