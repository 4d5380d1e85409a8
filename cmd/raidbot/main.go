package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"raidbot/internal/app"
	"raidbot/internal/raid"
	logx "raidbot/pkg/logx"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "raidbot",
	Short: "Telegram bot for scheduling group raids",
	Long: `raidbot coordinates recurring group raids in Telegram: event cards with
role signups and a waitlist, timed reminders, and post-raid FFLogs reports.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("raidbot %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().StringP("config", "c", "./config.yaml", "path to config file (yaml or json)")

	eventsCmd.Flags().Bool("all", false, "include events that already started")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(eventsCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := app.NewApp(ctx, cfgPath)
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			_ = a.Stop(context.Background(), app.StopFatalError)
			return fmt.Errorf("start: %w", err)
		}

		reason := app.StopSignal
		select {
		case <-ctx.Done():
		case <-a.Done():
			if a.Err() != nil {
				reason = app.StopFatalError
			}
		}

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		stopErr := a.Stop(stopCtx, reason)
		if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return stopErr
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := app.CheckConfig(cfgPath)
		if err != nil {
			return err
		}
		driver := "file"
		if cfg.Storage != nil {
			driver = cfg.Storage.Driver
		}
		fmt.Printf("config OK: %s\n", cfgPath)
		fmt.Printf("  storage: %s\n", driver)
		fmt.Printf("  roles: %s\n", strings.Join(cfg.Raid.Roles, ", "))
		fmt.Printf("  templates: %d\n", len(cfg.Templates))
		fmt.Printf("  fflogs: %t\n", cfg.FFLogs.ClientID != "" && cfg.FFLogs.ClientSecret != "")
		fmt.Printf("  http: %t\n", cfg.HTTP.Enabled)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List stored raids without starting the bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		all, _ := cmd.Flags().GetBool("all")

		evs, opts, err := app.StoredEvents(cmd.Context(), cfgPath, logx.NewConsole("warn"))
		if err != nil {
			return err
		}
		now := time.Now()
		n := 0
		for _, ev := range evs {
			if !all && !ev.ScheduledAt.After(now) {
				continue
			}
			fmt.Printf("%s (%s)\n", plain(raid.ListLine(ev, opts)), humanize.RelTime(ev.ScheduledAt, now, "ago", "from now"))
			n++
		}
		if n == 0 {
			fmt.Println("no events")
		}
		return nil
	},
}

var tagStripper = strings.NewReplacer("<code>", "", "</code>", "", "<b>", "", "</b>", "")

func plain(s string) string {
	return html.UnescapeString(tagStripper.Replace(s))
}
