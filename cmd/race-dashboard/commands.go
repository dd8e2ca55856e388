package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/race-odds-monitor/internal/dashboard"
	"github.com/radieske/race-odds-monitor/internal/shared/config"
)

// cli guarda as flags globais e as dependências dos comandos
type cli struct {
	log     *zap.Logger
	in      io.Reader
	out     io.Writer
	apiURL  string
	timeout time.Duration
}

func (c *cli) dashboard(opts dashboard.Options) *dashboard.Dashboard {
	if opts.Timeout == 0 {
		opts.Timeout = c.timeout
	}
	return dashboard.New(c.log, dashboard.NewClient(c.apiURL, c.timeout), opts)
}

func newRootCmd(cfg config.Config, log *zap.Logger, in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{log: log, in: in, out: out}

	root := &cobra.Command{
		Use:          "race-dashboard",
		Short:        "Terminal dashboard for the race odds monitor",
		SilenceUsage: true, // erros saem como "Error: ..." sem o texto de uso
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&c.apiURL, "api", cfg.DashboardAPIURL, "race-monitor base URL (or DASHBOARD_API_URL)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 5*time.Second, "per-request timeout")

	root.AddCommand(c.watchCmd(), c.monitorCmd(), c.baselineCmd(), c.refreshCmd(), c.resetCmd())
	return root
}

func (c *cli) watchCmd() *cobra.Command {
	var (
		interval time.Duration
		sortBy   string
		desc     bool
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of every monitored race (interactive; --once prints a snapshot)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sortState dashboard.SortState
			if sortBy != "" {
				key, ok := dashboard.ParseSortKey(sortBy)
				if !ok {
					return fmt.Errorf("unknown sort key %q", sortBy)
				}
				sortState = dashboard.SortState{Key: key, Descending: desc}
			}
			d := c.dashboard(dashboard.Options{Interval: interval, DefaultSort: sortState})

			if once {
				d.PollNow(cmd.Context())
				st := d.State()
				if err := dashboard.Render(c.out, st, d.SortFor, time.Now()); err != nil {
					return err
				}
				return st.ConnError
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			p := tea.NewProgram(dashboard.NewScreen(ctx, d),
				tea.WithContext(ctx),
				tea.WithInput(c.in),
				tea.WithOutput(c.out),
			)
			d.OnUpdate = func(st dashboard.State) { p.Send(dashboard.StateMsg(st)) }
			d.OnAlert = func(a dashboard.Alert) {
				c.log.Info("steam alert",
					zap.Int64("race_id", a.Race.ID),
					zap.String("runner", a.Runner.Name),
					zap.Float64("steam_pct", a.Runner.SteamPercentage),
				)
				p.Send(dashboard.AlertMsg(a))
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return d.Run(gctx) })
			g.Go(func() error {
				defer cancel() // sair da tela encerra o polling
				_, err := p.Run()
				if errors.Is(err, tea.ErrProgramKilled) {
					return nil
				}
				return err
			})
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval")
	cmd.Flags().StringVar(&sortBy, "sort", "", "initial sort for every card: number, name, current_odds, baseline_odds, steam_percentage, last_updated, flags")
	cmd.Flags().BoolVar(&desc, "desc", false, "initial sort descending")
	cmd.Flags().BoolVar(&once, "once", false, "poll once, render and exit")
	return cmd
}

func (c *cli) monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <url>",
		Short: "Start monitoring a race page (or bump it to the top)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.dashboard(dashboard.Options{}).Monitor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s (id %d)\n", res.Message, res.ID)
			return nil
		},
	}
}

func (c *cli) baselineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "baseline <race-id>",
		Short: "Snapshot current odds as the baseline for a race",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRaceID(args[0])
			if err != nil {
				return err
			}
			if err := c.dashboard(dashboard.Options{}).SetBaseline(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Baseline set")
			return nil
		},
	}
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <race-id>",
		Short: "Scrape a race immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRaceID(args[0])
			if err != nil {
				return err
			}
			if err := c.dashboard(dashboard.Options{}).Refresh(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Refreshed")
			return nil
		},
	}
}

func (c *cli) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every race except the most recently created one",
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := func(prompt string) bool {
				if yes {
					return true
				}
				fmt.Fprintf(c.out, "%s [y/N] ", prompt)
				line, _ := bufio.NewReader(c.in).ReadString('\n')
				answer := strings.ToLower(strings.TrimSpace(line))
				return answer == "y" || answer == "yes"
			}
			res, err := c.dashboard(dashboard.Options{Confirm: confirm}).Reset(cmd.Context())
			if errors.Is(err, dashboard.ErrResetCancelled) {
				fmt.Fprintln(c.out, "Reset cancelled")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, res.Message)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func parseRaceID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid race id %q", s)
	}
	return id, nil
}
