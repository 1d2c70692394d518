package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"idleforge/internal/bignum"
	"idleforge/internal/client"
	"idleforge/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		v, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		v = strings.TrimSpace(v)
		if v != "" {
			return v, nil
		}
		printWarn("Value is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	for {
		fmt.Printf("%s [%s] (default %s): ", label, strings.Join(options, "/"), defaultValue)
		v, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return defaultValue, nil
		}
		for _, opt := range options {
			if v == opt {
				return v, nil
			}
		}
		printWarn("Invalid choice.")
	}
}

func confirm(label string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	v, err := promptChoice(label, []string{"yes", "no"}, "no")
	if err != nil {
		return false, err
	}
	return v == "yes", nil
}

func renderDashboard(d game.Dashboard) {
	accent.Printf("\n== %s (phase %d) ==\n", strings.ToUpper(nonEmpty(d.PhaseName, "FORGE")), d.Phase)
	if d.NextPhaseAt != nil {
		fmt.Printf("Next Phase At:      %s lifetime\n", formatAmount(*d.NextPhaseAt))
	}
	fmt.Printf("Prestiges:          %d\n", d.Prestiges)
	fmt.Printf("Prestige Reward:    %s\n", colorizeAmount(d.PrestigeReward))
	fmt.Printf("Last Active:        %s\n", d.LastActive.Local().Format(time.DateTime))

	fmt.Println()
	accent.Println("Resources")
	if len(d.Resources) == 0 {
		printInfo("No resources yet.")
	} else {
		fmt.Printf("%-12s %-18s %12s %12s %12s\n", "ID", "NAME", "AMOUNT", "RATE/S", "LIFETIME")
		for _, r := range d.Resources {
			fmt.Printf("%-12s %-18s %12s %12s %12s\n",
				truncate(r.ID, 12),
				truncate(r.Name, 18),
				formatAmount(r.Amount),
				colorizeAmount(r.Rate),
				formatAmount(r.Lifetime),
			)
		}
	}

	renderItems("Producers", d.Producers)
	renderItems("Upgrades", d.Upgrades)

	if len(d.Boosts) > 0 {
		fmt.Println()
		accent.Println("Boosts")
		for _, b := range d.Boosts {
			fmt.Printf("  x%s on %s, %s left\n", formatAmount(b.Factor), b.Scope, (time.Duration(b.Remaining) * time.Second).String())
		}
	}
	fmt.Println()
}

func renderItems(title string, items []game.ItemView) {
	fmt.Println()
	accent.Println(title)
	if len(items) == 0 {
		printInfo("Nothing available yet.")
		return
	}
	fmt.Printf("%-14s %-20s %8s %12s %-10s %6s\n", "ID", "NAME", "LEVEL", "NEXT", "CURRENCY", "MAX")
	for _, it := range items {
		next := formatAmount(it.NextCost)
		switch {
		case !it.Unlocked:
			next = neutral.Sprint("locked")
		case it.OneTime && it.Owned:
			next = success.Sprint("owned")
		case it.MaxLevel > 0 && it.Level >= it.MaxLevel:
			next = success.Sprint("maxed")
		case it.MaxAffordable > 0:
			next = success.Sprint(next)
		}
		fmt.Printf("%-14s %-20s %8d %12s %-10s %6d\n",
			truncate(it.ID, 14),
			truncate(it.Name, 20),
			it.Level,
			next,
			truncate(it.Currency, 10),
			it.MaxAffordable,
		)
	}
}

func renderPurchase(kind string, res client.PurchaseResponse) {
	printSuccess(fmt.Sprintf("Bought %d x %s %s (level %d) for %s. Balance: %s",
		res.Result.AmountPurchased,
		kind,
		res.Result.ID,
		res.Result.NewLevel,
		shortString(res.Result.Cost),
		shortString(res.Balance),
	))
}

func renderOffline(claim game.OfflineClaim) {
	if claim.Reward.IsZero() {
		printInfo(fmt.Sprintf("Away for %s, nothing to collect.", claim.TimeAway.Round(time.Second)))
		return
	}
	msg := fmt.Sprintf("Welcome back! Away %s, collected %s %s.", claim.TimeAway.Round(time.Second), formatAmount(claim.Reward), claim.Resource)
	if claim.Capped {
		msg += fmt.Sprintf(" (capped at %s)", claim.CappedTime)
	}
	printSuccess(msg)
}

func renderPrestige(res game.PrestigeResult) {
	printSuccess(fmt.Sprintf("Prestige #%d: +%s %s (now %s).", res.Count, formatAmount(res.Reward), res.Resource, formatAmount(res.Balance)))
}

func formatAmount(d bignum.Decimal) string {
	return d.Short(2)
}

// shortString formats a decimal that arrived as text, falling back to the
// raw value when it does not parse.
func shortString(s string) string {
	d, err := bignum.Parse(s)
	if err != nil {
		return s
	}
	return formatAmount(d)
}

func colorizeAmount(d bignum.Decimal) string {
	text := formatAmount(d)
	switch d.Sign() {
	case 1:
		return success.Sprint(text)
	case -1:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
