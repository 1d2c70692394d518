package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"idleforge/internal/config"
	"idleforge/internal/game"
	"idleforge/internal/registry"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const watchSaveEvery = 15 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true)

	lockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)
)

type watchKeys struct {
	Up       key.Binding
	Down     key.Binding
	Buy      key.Binding
	BuyMax   key.Binding
	Prestige key.Binding
	Quit     key.Binding
}

func (k watchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Buy, k.BuyMax, k.Prestige, k.Quit}
}

func (k watchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultWatchKeys = watchKeys{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Buy:      key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "buy 1")),
	BuyMax:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "buy max")),
	Prestige: key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "prestige")),
	Quit:     key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

type watchModel struct {
	game     *localGame
	keys     watchKeys
	help     help.Model
	bar      progress.Model
	cursor   int
	status   string
	last     time.Time
	lastSave time.Time
	err      error
}

// choice is one purchasable row of the watch view.
type choice struct {
	kind registry.Kind
	item game.ItemView
}

func newWatchModel(g *localGame) watchModel {
	now := time.Now()
	return watchModel{
		game:     g,
		keys:     defaultWatchKeys,
		help:     help.New(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		last:     now,
		lastSave: now,
	}
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Init() tea.Cmd {
	return tickEvery()
}

func (m watchModel) choices(d game.Dashboard) []choice {
	out := make([]choice, 0, len(d.Producers)+len(d.Upgrades))
	for _, it := range d.Producers {
		out = append(out, choice{kind: registry.KindProducer, item: it})
	}
	for _, it := range d.Upgrades {
		out = append(out, choice{kind: registry.KindUpgrade, item: it})
	}
	return out
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	engine := m.game.engine
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		now := time.Time(msg)
		phase := engine.Phase()
		engine.Tick(now.Sub(m.last))
		m.last = now
		if engine.Phase() > phase {
			m.status = "Reached " + engine.Catalog().PhaseName(engine.Phase()) + "!"
		}
		if now.Sub(m.lastSave) >= watchSaveEvery {
			m.err = m.game.save(context.Background())
			m.lastSave = now
		}
		return m, tickEvery()

	case tea.KeyMsg:
		list := m.choices(engine.Dashboard())
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(list)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Buy), key.Matches(msg, m.keys.BuyMax):
			if m.cursor >= len(list) {
				return m, nil
			}
			qty := registry.Quantity(1)
			if key.Matches(msg, m.keys.BuyMax) {
				qty = registry.Max
			}
			m.status = m.buy(list[m.cursor], qty)
		case key.Matches(msg, m.keys.Prestige):
			res, err := engine.Prestige()
			if err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.cursor = 0
			m.status = fmt.Sprintf("Prestige #%d: +%s %s", res.Count, formatAmount(res.Reward), res.Resource)
		}
	}
	return m, nil
}

func (m watchModel) buy(c choice, qty registry.Quantity) string {
	in := game.BuyInput{ID: c.item.ID, Quantity: qty}
	var (
		res registry.Result
		err error
	)
	if c.kind == registry.KindUpgrade {
		res, err = m.game.engine.BuyUpgrade(in)
	} else {
		res, err = m.game.engine.BuyProducer(in)
	}
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Bought %d x %s for %s", res.AmountPurchased, res.ID, formatAmount(res.Cost))
}

func (m watchModel) View() string {
	engine := m.game.engine
	d := engine.Dashboard()

	var header strings.Builder
	header.WriteString(titleStyle.Render(strings.ToUpper(nonEmpty(d.PhaseName, "forge"))))
	header.WriteString("\n")
	if d.NextPhaseAt != nil {
		ratio := 1.0
		if next := d.NextPhaseAt.Float64(); next > 0 {
			ratio = engine.Lifetime(engine.PrimaryResource()).Float64() / next
		}
		header.WriteString(m.bar.ViewAs(clamp01(ratio)))
		header.WriteString(" next phase at " + formatAmount(*d.NextPhaseAt))
	} else {
		header.WriteString("final phase")
	}

	var res strings.Builder
	res.WriteString(titleStyle.Render("RESOURCES") + "\n")
	for _, r := range d.Resources {
		fmt.Fprintf(&res, "%-12s %10s  %s/s\n", truncate(r.Name, 12), formatAmount(r.Amount), formatAmount(r.Rate))
	}
	fmt.Fprintf(&res, "\nprestige: +%s (%d done)\n", formatAmount(d.PrestigeReward), d.Prestiges)
	for _, b := range d.Boosts {
		fmt.Fprintf(&res, "boost x%s %s %.0fs\n", formatAmount(b.Factor), b.Scope, b.Remaining)
	}

	var items strings.Builder
	items.WriteString(titleStyle.Render("SHOP") + "\n")
	for i, c := range m.choices(d) {
		line := fmt.Sprintf("%-8s %-18s lv %-5d %10s %s", c.kind, truncate(c.item.Name, 18), c.item.Level, formatAmount(c.item.NextCost), c.item.Currency)
		switch {
		case i == m.cursor:
			line = selectedStyle.Render(line)
		case !c.item.Unlocked:
			line = lockedStyle.Render(line)
		}
		items.WriteString(line + "\n")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(strings.TrimRight(res.String(), "\n")),
		panelStyle.Render(strings.TrimRight(items.String(), "\n")),
	)

	status := m.status
	if m.err != nil {
		status = "save failed: " + m.err.Error()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header.String(),
		body,
		statusStyle.Render(status),
		m.help.View(m.keys),
	) + "\n"
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func newWatchCmd(cfg *config.CLIConfig, player *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Play live in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("watch needs an interactive terminal")
			}
			g, err := openLocal(cmd.Context(), *cfg, *player)
			if err != nil {
				return err
			}
			p := tea.NewProgram(newWatchModel(g), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return err
			}
			return g.save(cmd.Context())
		},
	}
}
