package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/tempo/internal/ui"
	"github.com/papapumpkin/tempo/internal/work"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record knowledge entries and check whether they are still trustworthy",
}

var logAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a knowledge entry anchored to one or more paths",
	Args:  cobra.NoArgs,
	RunE:  runLogAdd,
}

var logClassifyCmd = &cobra.Command{
	Use:   "classify [id]",
	Short: "Classify entries as fresh, stale, orphaned or unknown",
	Long: `An entry is stale when one of its anchors changed after the entry was written
or last verified, and orphaned when an anchor no longer exists. Unknown means
a timestamp could not be resolved and the entry must not be trusted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogClassify,
}

var logVerifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Mark an entry as confirmed accurate as of now",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogVerify,
}

var logRebuildCmd = &cobra.Command{
	Use:   "rebuild [path]",
	Short: "Prune missing anchors, delete orphaned entries and regenerate the index",
	Long: `Entries whose anchors are all gone are deleted; entries with some anchors gone
are rewritten with the remaining anchors. With a path, only entries anchored
under it are examined. The index is always regenerated in full.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogRebuild,
}

var logIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Regenerate and show the knowledge index",
	Long: `Regenerates the index from every stored entry. With --cached the index is
read as last written, without touching the entries.`,
	Args: cobra.NoArgs,
	RunE: runLogIndex,
}

func init() {
	f := logAddCmd.Flags()
	f.StringSlice("anchor", nil, "path the entry depends on (repeatable, at least one)")
	f.String("id", "", "entry id (default: a random UUID)")
	f.String("content", "", "entry content")
	f.String("file", "", `read the content from a file ("-" for stdin)`)
	_ = logAddCmd.MarkFlagRequired("anchor")
	logIndexCmd.Flags().Bool("cached", false, "show the stored index without regenerating it")
	logAddCmd.MarkFlagsMutuallyExclusive("content", "file")

	for _, c := range []*cobra.Command{logAddCmd, logClassifyCmd, logVerifyCmd, logRebuildCmd, logIndexCmd} {
		addJSONFlag(c)
		logCmd.AddCommand(c)
	}
	rootCmd.AddCommand(logCmd)
}

func runLogAdd(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	anchors, _ := f.GetStringSlice("anchor")
	id, _ := f.GetString("id")
	content, _ := f.GetString("content")
	if file, _ := f.GetString("file"); file != "" {
		var err error
		if content, err = readBody(file); err != nil {
			return err
		}
	}
	if content == "" {
		return errors.New("entry content is empty; use --content or --file")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.tracker.Record(cmd.Context(), content, anchors, id)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), e)
	}
	a.printer.Success(fmt.Sprintf("recorded %s (%d anchor(s))", e.ID, len(e.Anchors)))
	return nil
}

func runLogClassify(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		c, err := a.tracker.Classify(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return ui.JSON(cmd.OutOrStdout(), c)
		}
		a.printer.Classification(c)
		return nil
	}

	cs, skips, err := a.tracker.ClassifyAll(cmd.Context())
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), cs)
	}
	a.printer.Skipped(skips)
	a.printer.Classifications(cs)
	return nil
}

func runLogVerify(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.tracker.Verify(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), e)
	}
	a.printer.Success(fmt.Sprintf("verified %s", e.ID))
	return nil
}

func runLogRebuild(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.tracker.Rebuild(cmd.Context(), optArg(args))
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), report)
	}
	a.printer.Rebuild(report)
	return nil
}

func runLogIndex(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var idx *work.Index
	var skips []work.Skip
	if cached, _ := cmd.Flags().GetBool("cached"); cached {
		idx, err = a.store.LoadIndex()
	} else {
		idx, skips, err = a.tracker.Reindex(cmd.Context())
	}
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), idx)
	}
	a.printer.Skipped(skips)
	a.printer.Index(idx)
	return nil
}
