package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"idleforge/internal/client"
	"idleforge/internal/config"
	"idleforge/internal/game"
	"idleforge/internal/registry"
	"idleforge/internal/syncq"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	player := "local"
	root := &cobra.Command{
		Use:          "forge",
		Short:        "Idle forge incremental game",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&player, "player", player, "local save to play")
	root.PersistentFlags().StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "API base URL for remote commands")

	root.AddCommand(
		newStatusCmd(&cfg, &player),
		newBuyCmd(&cfg, &player, registry.KindProducer),
		newBuyCmd(&cfg, &player, registry.KindUpgrade),
		newUnlockCmd(&cfg, &player),
		newTickCmd(&cfg, &player),
		newOfflineCmd(&cfg, &player),
		newPrestigeCmd(&cfg, &player),
		newWatchCmd(&cfg, &player),
		newRemoteCmd(&cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newStatusCmd(cfg *config.CLIConfig, player *string) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show your forge",
		Aliases: []string{"dash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			g, err := openLocal(ctx, *cfg, *player)
			if err != nil {
				return err
			}
			renderDashboard(g.engine.Dashboard())
			return g.save(ctx)
		},
	}
}

func newBuyCmd(cfg *config.CLIConfig, player *string, kind registry.Kind) *cobra.Command {
	use, short := "buy", "Buy producers (quantity or max)"
	if kind == registry.KindUpgrade {
		use, short = "upgrade", "Buy upgrade levels (quantity or max)"
	}
	return &cobra.Command{
		Use:   use + " [id] [quantity|max]",
		Short: short,
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, qty, err := purchaseArgs(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			g, err := openLocal(ctx, *cfg, *player)
			if err != nil {
				return err
			}
			in := game.BuyInput{ID: id, Quantity: qty}
			var res registry.Result
			if kind == registry.KindUpgrade {
				res, err = g.engine.BuyUpgrade(in)
			} else {
				res, err = g.engine.BuyProducer(in)
			}
			if err != nil {
				return err
			}
			def, _ := definition(g.engine, id)
			printSuccess(fmt.Sprintf("Bought %d x %s (level %d) for %s. Balance: %s",
				res.AmountPurchased,
				res.ID,
				res.NewLevel,
				formatAmount(res.Cost),
				formatAmount(g.engine.GetResourceAmount(def.Currency)),
			))
			return g.save(ctx)
		},
	}
}

func newUnlockCmd(cfg *config.CLIConfig, player *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <id>",
		Short: "Unlock a producer or upgrade directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.ToLower(strings.TrimSpace(args[0]))
			if err := game.ValidateItemID(id); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			g, err := openLocal(ctx, *cfg, *player)
			if err != nil {
				return err
			}
			changed, err := g.engine.Unlock(id)
			if err != nil {
				return err
			}
			if !changed {
				printInfo(fmt.Sprintf("%s was already unlocked.", id))
				return nil
			}
			printSuccess(fmt.Sprintf("Unlocked %s.", id))
			return g.save(ctx)
		},
	}
}

func newTickCmd(cfg *config.CLIConfig, player *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tick [duration]",
		Short: "Run production for a span of game time (default 1m)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt := time.Minute
			if len(args) > 0 {
				d, err := time.ParseDuration(strings.TrimSpace(args[0]))
				if err != nil || d <= 0 {
					return fmt.Errorf("invalid duration %q", args[0])
				}
				dt = d
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			g, err := openLocal(ctx, *cfg, *player)
			if err != nil {
				return err
			}
			phase := g.engine.Phase()
			produced := g.engine.Tick(dt)
			if len(produced) == 0 {
				printInfo("Nothing is producing yet.")
			}
			for res, amount := range produced {
				printSuccess(fmt.Sprintf("+%s %s over %s", formatAmount(amount), res, dt))
			}
			if g.engine.Phase() > phase {
				accent.Printf("Reached %s!\n", g.engine.Catalog().PhaseName(g.engine.Phase()))
			}
			return g.save(ctx)
		},
	}
}

func newOfflineCmd(cfg *config.CLIConfig, player *string) *cobra.Command {
	return &cobra.Command{
		Use:   "offline",
		Short: "Collect earnings from time away",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			g, err := openLocal(ctx, *cfg, *player)
			if err != nil {
				return err
			}
			if g.claim.Reward.IsZero() {
				renderOffline(g.claim)
			}
			oc := g.engine.OfflineConfig()
			printInfo(fmt.Sprintf("Offline earnings run at %.0f%% for up to %s.", oc.Efficiency*100, oc.Cap()))
			return g.save(ctx)
		},
	}
}

func newPrestigeCmd(cfg *config.CLIConfig, player *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "prestige",
		Short: "Reset this run for a permanent reward",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			g, err := openLocal(ctx, *cfg, *player)
			if err != nil {
				return err
			}
			reward := g.engine.PrestigeReward()
			if reward.Sign() <= 0 {
				return game.ErrPrestigeUnavailable
			}
			ok, err := confirm(fmt.Sprintf("Reset for %s %s?", formatAmount(reward), g.engine.Catalog().Prestige.Resource), yes)
			if err != nil {
				return err
			}
			if !ok {
				printInfo("Prestige cancelled.")
				return nil
			}
			res, err := g.engine.Prestige()
			if err != nil {
				return err
			}
			renderPrestige(res)
			return g.save(ctx)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newRemoteCmd(cfg *config.CLIConfig) *cobra.Command {
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Play against a forge API",
	}
	remote.AddCommand(
		newRemoteStatusCmd(cfg),
		newRemoteBuyCmd(cfg, "producers"),
		newRemoteBuyCmd(cfg, "upgrades"),
		newRemotePrestigeCmd(cfg),
		newRemoteSyncCmd(cfg),
	)
	return remote
}

func newClient(cfg *config.CLIConfig) *client.Client {
	return client.New(strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"))
}

func newRemoteStatusCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the remote forge",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			d, err := newClient(cfg).State(ctx)
			if err != nil {
				return err
			}
			renderDashboard(d)
			return nil
		},
	}
}

func newRemoteBuyCmd(cfg *config.CLIConfig, kind string) *cobra.Command {
	use := "buy"
	if kind == "upgrades" {
		use = "upgrade"
	}
	return &cobra.Command{
		Use:   use + " [id] [quantity|max]",
		Short: "Buy " + kind + " on the remote forge",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _, err := purchaseArgs(args)
			if err != nil {
				return err
			}
			quantity := ""
			if len(args) > 1 {
				quantity = strings.ToLower(strings.TrimSpace(args[1]))
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			c := newClient(cfg)
			idem := uuid.NewString()
			var res client.PurchaseResponse
			if kind == "upgrades" {
				res, err = c.BuyUpgrade(ctx, id, quantity, idem)
			} else {
				res, err = c.BuyProducer(ctx, id, quantity, idem)
			}
			if err != nil {
				return queueOnUnreachable(cfg, err, syncq.Command{
					Method:         http.MethodPost,
					Path:           client.BuyPath(kind, id),
					Body:           client.QuantityBody(quantity),
					IdempotencyKey: idem,
				})
			}
			renderPurchase(strings.TrimSuffix(kind, "s"), res)
			return nil
		},
	}
}

func newRemotePrestigeCmd(cfg *config.CLIConfig) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "prestige",
		Short: "Prestige the remote forge",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirm("Reset the remote run?", yes)
			if err != nil {
				return err
			}
			if !ok {
				printInfo("Prestige cancelled.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			idem := uuid.NewString()
			res, err := newClient(cfg).Prestige(ctx, idem)
			if err != nil {
				return queueOnUnreachable(cfg, err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/prestige",
					IdempotencyKey: idem,
				})
			}
			renderPrestige(res)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newRemoteSyncCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay commands queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.New(cfg.Home)
			if err != nil {
				return err
			}
			pending, err := queue.Load()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			results, err := newClient(cfg).SyncReplay(ctx, pending)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Status >= 300 {
					printError(fmt.Sprintf("Replay of %s %s returned %d", r.Method, r.Path, r.Status))
				}
			}
			remaining, err := queue.Settle(results)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", len(pending)-len(remaining), len(remaining)))
			return nil
		},
	}
}

// queueOnUnreachable keeps a write for the next sync when the API could not
// be reached; any other error is returned as is.
func queueOnUnreachable(cfg *config.CLIConfig, err error, cmd syncq.Command) error {
	if !client.IsUnreachable(err) {
		return err
	}
	queue, qerr := syncq.New(cfg.Home)
	if qerr != nil {
		return fmt.Errorf("%w (queue unavailable: %v)", err, qerr)
	}
	if _, qerr := queue.Push(cmd); qerr != nil {
		return fmt.Errorf("%w (queue failed: %v)", err, qerr)
	}
	printWarn(fmt.Sprintf("API unreachable, queued %s %s. Run `forge remote sync` later.", cmd.Method, cmd.Path))
	return nil
}

func purchaseArgs(args []string) (string, registry.Quantity, error) {
	var id string
	if len(args) > 0 {
		id = args[0]
	} else {
		v, err := promptRequired("Item id")
		if err != nil {
			return "", 0, err
		}
		id = v
	}
	id = strings.ToLower(strings.TrimSpace(id))
	if err := game.ValidateItemID(id); err != nil {
		return "", 0, err
	}
	qty := registry.Quantity(1)
	if len(args) > 1 {
		q, err := registry.ParseQuantity(strings.ToLower(strings.TrimSpace(args[1])))
		if err != nil {
			return "", 0, err
		}
		qty = q
	}
	return id, qty, nil
}

func definition(e *game.Engine, id string) (registry.Definition, bool) {
	if def, ok := e.Producers().Definition(id); ok {
		return def, true
	}
	return e.Upgrades().Definition(id)
}
