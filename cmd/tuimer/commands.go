package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/tuimer/internal/config"
	"github.com/verte-zerg/tuimer/internal/countdown"
	"github.com/verte-zerg/tuimer/internal/history"
	"github.com/verte-zerg/tuimer/internal/model"
	"github.com/verte-zerg/tuimer/internal/store"
)

var (
	historyLabel string
	historySince string
	historyLast  int
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# tuimer configuration
# Uncomment a value to enable it. CLI flags override config values.

[timers]
# seconds = [10, 40, 110]     # Timers shown on start
# labels = ["", "tea", ""]    # Optional labels, one per entry in seconds

[alarm]
# sound = "/path/to/alarm.wav"  # WAV file (default: built-in tone)
# volume = %.1f                 # Alarm volume (0-1)
# timeout = %d                  # Seconds before the alarm stops by itself
# mute = false                  # Do not play the alarm sound
# record = false                # Record finished timers (see: tuimer history)

[notify]
# enabled = true                # Show desktop notifications
# title = %q
# body = %q        # {label} is replaced by the timer label
# delay = %d                    # Seconds between the alarm and the notification
# sound = false                 # Ask the desktop to play its own sound

[log]
# file = "%s"
# level = %q
`,
		defaultVolume,
		defaultAlarmTimeout,
		defaultNotifyTitle,
		defaultNotifyBody,
		defaultNotifyDelay,
		config.DefaultLogPath(),
		defaultLogLevel,
	)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished timers",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyLabel, "label", "", "label filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N alarms")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := historyConfig(historyLabel, historySince, historyLast)
	if err != nil {
		return err
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	report, err := history.BuildReport(context.Background(), st, cfg)
	if err != nil {
		return err
	}
	if err := report.Write(cmd.OutOrStdout(), time.Local); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func historyConfig(label, since string, last int) (model.HistoryConfig, error) {
	if last < 0 {
		return model.HistoryConfig{}, fmt.Errorf("--last must be >= 0")
	}
	cfg := model.HistoryConfig{Label: label, Last: last}
	if since != "" {
		parsed, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return model.HistoryConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		cfg.Since = &parsed
	}
	return cfg, nil
}

func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format SECONDS...",
		Short: "Print seconds as M:SS",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFormatCmd,
	}
}

func runFormatCmd(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		secs, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid seconds %q: %w", arg, err)
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), countdown.FormatTime(secs)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
