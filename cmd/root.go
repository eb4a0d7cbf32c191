package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/tempo/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "tempo",
	Short: "Dependency-aware work scheduler and knowledge staleness tracker",
	Long: `Tempo tracks specs, their work items and anchored knowledge entries as plain
documents under .tempo/, and answers two questions: which item may run next,
and which knowledge entries can still be trusted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		ui.New().Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default .tempo.yaml)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.String("work-dir", "", "repository root that anchors are relative to (default .)")
	pf.String("store-dir", "", "document store directory (default .tempo)")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("work_dir", pf.Lookup("work-dir"))
	_ = viper.BindPFlag("store_dir", pf.Lookup("store-dir"))
}

func initConfig() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".tempo")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("TEMPO")
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

func addJSONFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "output as JSON to stdout")
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// optArg returns the first positional argument or "".
func optArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
