package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/eventq"
	"github.com/agusx1211/brood/internal/handoff"
	"github.com/agusx1211/brood/internal/hook"
	"github.com/agusx1211/brood/internal/monitor"
	"github.com/agusx1211/brood/internal/pushover"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Sweep agent logs and print notifications",
	Long: `Runs the same sweep as the monitor hook and prints one notification per
line. With --watch it keeps sweeping whenever an agent log changes.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().String("dir", "", "Working directory (default: current)")
	monitorCmd.Flags().Bool("watch", false, "Keep sweeping on log changes")
	monitorCmd.Flags().Bool("reap", false, "Mark dead in-progress agents as interrupted")
	monitorCmd.Flags().String("session", "", "Only report agents spawned by this session")
	monitorCmd.Flags().Duration("interval", 5*time.Second, "Fallback sweep interval in watch mode")
	monitorCmd.Flags().Bool("push", false, "Also send notifications through Pushover")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	dirFlag, _ := cmd.Flags().GetString("dir")
	dir, err := workDir(dirFlag)
	if err != nil {
		return err
	}
	s, err := loadSettings(dir)
	if err != nil {
		return err
	}
	session, _ := cmd.Flags().GetString("session")
	reap, _ := cmd.Flags().GetBool("reap")
	t := monitor.Trigger{SessionID: session, AllSessions: session == ""}
	if reap {
		t.Event = hook.SubagentStop
	}
	m := monitor.New(s, dir, os.Getenv(handoff.EnvAgentID))

	w := cmd.OutOrStdout()
	var notify func(string)
	if push, _ := cmd.Flags().GetBool("push"); push {
		client := pushover.New(s.Pushover)
		if !client.Configured() {
			return pushover.ErrNotConfigured
		}
		title := "brood: " + filepath.Base(dir)
		notify = func(update string) {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := client.Send(ctx, pushover.Message{Title: title, Body: update}); err != nil {
				debug.LogErr("cli", "pushover send failed", err)
			}
		}
	}
	if err := sweepAndPrint(w, m, t, notify); err != nil {
		return err
	}
	if watch, _ := cmd.Flags().GetBool("watch"); !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	interval, _ := cmd.Flags().GetDuration("interval")
	return watchDir(ctx, s.ResponsesPath(dir), interval, func() {
		if err := sweepAndPrint(w, m, t, notify); err != nil {
			debug.LogErr("cli", "monitor sweep failed", err, "dir", dir)
		}
	})
}

func sweepAndPrint(w io.Writer, m *monitor.Monitor, t monitor.Trigger, notify func(string)) error {
	updates, err := m.Sweep(t)
	if err != nil {
		return err
	}
	for _, u := range updates {
		fmt.Fprintf(w, "%s%s%s %s\n", colorDim, time.Now().Format("15:04:05"), colorReset, u)
		if notify != nil {
			notify(u)
		}
	}
	return nil
}

// watchDir calls fn whenever dir changes and at least every interval.
func watchDir(ctx context.Context, dir string, interval time.Duration, fn func()) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	wake := eventq.NewSignal()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		debug.LogErr("cli", "fsnotify unavailable, polling only", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(dir); err != nil {
			debug.LogErr("cli", "watching dir failed, polling only", err, "dir", dir)
		}
		go func() {
			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return
					}
					if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
						eventq.Notify(wake)
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					debug.LogErr("cli", "fsnotify error", err)
				}
			}
		}()
	}

	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
			// Coalesce bursts of writes into one sweep.
			time.Sleep(200 * time.Millisecond)
			eventq.Drain(wake)
		}
		fn()
	}
}
