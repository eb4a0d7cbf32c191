package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/tempo/internal/telemetry"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the store's state-change history",
	Long: `Reads events.jsonl from the store and prints one line per event.
With --follow (-f), keeps watching the file for new events (like tail -f).`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	eventsCmd.Flags().String("kind", "", "only show events of this kind")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, _ []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	kind, _ := cmd.Flags().GetString("kind")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	path := filepath.Join(a.root, telemetry.FileName)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.printer.Info("no events recorded yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("events: open %s: %w", path, err)
	}
	defer f.Close()

	show := func(line string) {
		var evt telemetry.Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			a.printer.Warn(fmt.Sprintf("undecodable event: %s", line))
			return
		}
		if kind == "" || evt.Kind == kind {
			a.printer.Event(evt)
		}
	}

	t := &tailer{r: bufio.NewReader(f), show: show}
	if err := t.drain(); err != nil {
		return fmt.Errorf("events: read %s: %w", path, err)
	}
	if !follow {
		return nil
	}
	return followEvents(cmd, t, path)
}

// tailer reads complete lines from a growing file. A trailing line without
// its newline is held until the rest of it arrives.
type tailer struct {
	r       *bufio.Reader
	partial string
	show    func(string)
}

func (t *tailer) drain() error {
	for {
		line, err := t.r.ReadString('\n')
		if errors.Is(err, io.EOF) {
			t.partial += line
			return nil
		}
		if err != nil {
			return err
		}
		line, t.partial = t.partial+line, ""
		if line = strings.TrimSpace(line); line != "" {
			t.show(line)
		}
	}
}

// followEvents prints lines appended to path until the command's context
// is cancelled.
func followEvents(cmd *cobra.Command, t *tailer, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("events: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("events: watch %s: %w", path, err)
	}

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("events: watch %s: %w", path, err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			if err := t.drain(); err != nil {
				return fmt.Errorf("events: read %s: %w", path, err)
			}
		}
	}
}
