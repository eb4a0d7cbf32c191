package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/tempo/internal/schedule"
	"github.com/papapumpkin/tempo/internal/ui"
	"github.com/papapumpkin/tempo/internal/work"
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Create, inspect and transition specs",
}

var specNewCmd = &cobra.Command{
	Use:   "new <id> <title>",
	Short: "Create a draft spec with an empty plan",
	Args:  cobra.ExactArgs(2),
	RunE:  runSpecNew,
}

var specStatusCmd = &cobra.Command{
	Use:   "status <id> <draft|in-review|approved|implemented|deprecated>",
	Short: "Change a spec's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runSpecStatus,
}

var specShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a spec and a summary of its items",
	Args:  cobra.ExactArgs(1),
	RunE:  runSpecShow,
}

var specListCmd = &cobra.Command{
	Use:   "list",
	Short: "List specs",
	Args:  cobra.NoArgs,
	RunE:  runSpecList,
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage work items",
}

var itemAddCmd = &cobra.Command{
	Use:   "add <spec> <id> <title>",
	Short: "Add a pending item to an approved spec",
	Args:  cobra.ExactArgs(3),
	RunE:  runItemAdd,
}

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies between items",
}

var depAddCmd = &cobra.Command{
	Use:   "add <spec/item> <depends-on>",
	Short: "Record that an item depends on another item of the same spec",
	Long:  "An edge that would close a dependency cycle is rejected and nothing is written.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepAdd,
}

func init() {
	specNewCmd.Flags().String("body-file", "", `read the spec body from a file ("-" for stdin)`)
	for _, c := range []*cobra.Command{specNewCmd, specStatusCmd, specShowCmd, specListCmd} {
		addJSONFlag(c)
		specCmd.AddCommand(c)
	}

	f := itemAddCmd.Flags()
	f.String("description", "", "item description")
	f.Int("priority", 2, fmt.Sprintf("priority, %d (most urgent) to %d", work.PriorityHighest, work.PriorityLowest))
	f.StringSlice("depends-on", nil, "ids of items this item depends on")
	f.String("parent", "", "id of the session this item belongs to")
	f.String("type", "", `item type; "session" items group child tasks`)
	f.StringSlice("scope", nil, "file scope patterns the item may touch")
	addJSONFlag(itemAddCmd)
	itemCmd.AddCommand(itemAddCmd)

	depCmd.AddCommand(depAddCmd)

	rootCmd.AddCommand(specCmd, itemCmd, depCmd)
}

func runSpecNew(cmd *cobra.Command, args []string) error {
	bodyFile, _ := cmd.Flags().GetString("body-file")
	body, err := readBody(bodyFile)
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	spec, err := a.sched.CreateSpec(cmd.Context(), args[0], args[1], body)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), spec)
	}
	a.printer.Success(fmt.Sprintf("created spec %s (%s)", spec.ID, spec.Status))
	return nil
}

func runSpecStatus(cmd *cobra.Command, args []string) error {
	to := work.SpecStatus(args[1])
	if !work.ValidSpecStatus(to) {
		return fmt.Errorf("unknown spec status %q", args[1])
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	spec, err := a.sched.TransitionSpec(cmd.Context(), args[0], to)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), spec)
	}
	a.printer.Success(fmt.Sprintf("spec %s is now %s", spec.ID, spec.Status))
	return nil
}

func runSpecShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	spec, err := a.store.LoadSpec(args[0])
	if err != nil {
		return err
	}
	plan, err := a.store.LoadPlan(args[0])
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), struct {
			Spec work.Spec  `json:"spec"`
			Plan *work.Plan `json:"plan"`
		}{spec, plan})
	}
	a.printer.SpecDetail(spec, plan)
	return nil
}

func runSpecList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	specs, skips, err := a.store.ListSpecs()
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), specs)
	}
	a.printer.Skipped(skips)
	a.printer.Specs(specs)
	return nil
}

func runItemAdd(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	n := schedule.NewItem{ID: args[1], Title: args[2]}
	n.Description, _ = f.GetString("description")
	n.Priority, _ = f.GetInt("priority")
	n.DependsOn, _ = f.GetStringSlice("depends-on")
	n.ParentID, _ = f.GetString("parent")
	n.Type, _ = f.GetString("type")
	n.Scope, _ = f.GetStringSlice("scope")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	it, err := a.sched.AddItem(cmd.Context(), args[0], n)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return ui.JSON(cmd.OutOrStdout(), it)
	}
	a.printer.Success(fmt.Sprintf("added %s/%s (p%d)", args[0], it.ID, it.Priority))
	return nil
}

func runDepAdd(cmd *cobra.Command, args []string) error {
	ref, err := work.ParseRef(args[0], "")
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sched.AddDependency(cmd.Context(), ref, args[1]); err != nil {
		return err
	}
	a.printer.Success(fmt.Sprintf("%s now depends on %s", ref, args[1]))
	return nil
}

// readBody reads path, or stdin when path is "-". An empty path is an empty
// body.
func readBody(path string) (string, error) {
	switch path {
	case "":
		return "", nil
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
