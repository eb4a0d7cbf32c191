package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/tempo/internal/schedule"
	"github.com/papapumpkin/tempo/internal/ui"
	"github.com/papapumpkin/tempo/internal/work"
)

var nextCmd = &cobra.Command{
	Use:   "next [spec]",
	Short: "Show the most urgent unblocked item",
	Long: `Selects the unblocked item with the lowest priority value, breaking ties by
ref. Nothing is changed; run "tempo begin <ref>" to claim it. Without a spec
every spec is considered.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNext,
}

var waveCmd = &cobra.Command{
	Use:   "wave [spec]",
	Short: "Show every unblocked item sharing the most urgent priority",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWave,
}

var beginCmd = &cobra.Command{
	Use:   "begin <spec/item>",
	Short: "Move an item from pending to in_progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runBegin,
}

var completeCmd = &cobra.Command{
	Use:   "complete <spec/item>",
	Short: "Move an item from in_progress to done",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

var failCmd = &cobra.Command{
	Use:   "fail <spec/item>",
	Short: "Record a failed attempt of an in-progress item",
	Long: `A retriable failure within the retry budget returns the item to pending,
cooling down per the back-off policy. A final failure, or one that exhausts
the budget, blocks the item.`,
	Args: cobra.ExactArgs(1),
	RunE: runFail,
}

var retryCmd = &cobra.Command{
	Use:   "retry <spec/item>",
	Short: "Return a blocked item to pending with a fresh retry budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

var listCmd = &cobra.Command{
	Use:   "list [spec]",
	Short: "List work items with their status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

var stuckCmd = &cobra.Command{
	Use:   "stuck [spec]",
	Short: "Report long-running items and reservations without a running owner",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStuck,
}

var layersCmd = &cobra.Command{
	Use:   "layers <spec>",
	Short: "Show a spec's items grouped into dependency layers",
	Args:  cobra.ExactArgs(1),
	RunE:  runLayers,
}

func init() {
	for _, c := range []*cobra.Command{nextCmd, waveCmd, beginCmd, completeCmd, failCmd, retryCmd, listCmd, stuckCmd, layersCmd} {
		addJSONFlag(c)
		rootCmd.AddCommand(c)
	}
	failCmd.Flags().Bool("final", false, "block the item regardless of the retry budget")
	failCmd.Flags().String("reason", "", "failure reason recorded on the item")
	stuckCmd.Flags().Duration("older-than", time.Hour, "report items in progress for at least this long")
}

func runNext(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sel, err := a.sched.SelectNext(cmd.Context(), optArg(args))
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), sel)
	}
	a.printer.Selection(sel)
	return nil
}

func runWave(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := a.sched.SelectWave(cmd.Context(), optArg(args))
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), w)
	}
	a.printer.Wave(w)
	return nil
}

// transition runs one state-machine operation on the ref in args[0].
func transition(cmd *cobra.Command, args []string, verb string,
	fn func(a *app, ref work.Ref) (schedule.Outcome, error)) error {
	ref, err := work.ParseRef(args[0], "")
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := fn(a, ref)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), out)
	}
	a.printer.Outcome(verb, out)
	return nil
}

func runBegin(cmd *cobra.Command, args []string) error {
	return transition(cmd, args, "begin", func(a *app, ref work.Ref) (schedule.Outcome, error) {
		return a.sched.Begin(cmd.Context(), ref)
	})
}

func runComplete(cmd *cobra.Command, args []string) error {
	return transition(cmd, args, "complete", func(a *app, ref work.Ref) (schedule.Outcome, error) {
		return a.sched.Complete(cmd.Context(), ref)
	})
}

func runFail(cmd *cobra.Command, args []string) error {
	final, _ := cmd.Flags().GetBool("final")
	reason, _ := cmd.Flags().GetString("reason")
	return transition(cmd, args, "fail", func(a *app, ref work.Ref) (schedule.Outcome, error) {
		return a.sched.Fail(cmd.Context(), ref, schedule.FailOptions{Retriable: !final, Reason: reason})
	})
}

func runRetry(cmd *cobra.Command, args []string) error {
	return transition(cmd, args, "retry", func(a *app, ref work.Ref) (schedule.Outcome, error) {
		return a.sched.Retry(cmd.Context(), ref)
	})
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.sched.Snapshot(cmd.Context(), optArg(args))
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), snap.Plans)
	}
	a.printer.Items(snap)
	return nil
}

func runStuck(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.sched.Stuck(cmd.Context(), optArg(args), olderThan)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), items)
	}
	a.printer.Stuck(items)
	return nil
}

func runLayers(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	layers, err := a.sched.Layers(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), layers)
	}
	plan, err := a.store.LoadPlan(args[0])
	if err != nil {
		return err
	}
	if len(layers) == 0 {
		a.printer.Info(fmt.Sprintf("spec %s has no items", args[0]))
		return nil
	}
	a.printer.Layers(layers, plan)
	return nil
}
