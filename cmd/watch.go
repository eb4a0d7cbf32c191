package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/tempo/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [spec]",
	Short: "Watch the store and report the next item whenever a document changes",
	Long: `Prints the current selection, then re-selects every time a spec or plan
changes on disk. Changed log entries are re-classified. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := watch.NewWatcher(a.root)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()

	ctx := cmd.Context()
	scope := optArg(args)
	reselect := func() {
		sel, err := a.sched.SelectNext(ctx, scope)
		if err != nil {
			a.printer.Error(err.Error())
			return
		}
		a.printer.Selection(sel)
	}

	reselect()
	a.printer.Info(fmt.Sprintf("watching %s (ctrl-c to stop)", a.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-w.Changes:
			if !ok {
				return nil
			}
			a.printer.Info(fmt.Sprintf("%s %s %s", ch.Doc, ch.ID, ch.Kind))
			if ch.Doc != watch.DocEntry {
				reselect()
				continue
			}
			if ch.Kind == watch.ChangeRemoved {
				continue
			}
			c, err := a.tracker.Classify(ctx, ch.ID)
			if err != nil {
				a.printer.Error(err.Error())
				continue
			}
			a.printer.Classification(c)
		}
	}
}
