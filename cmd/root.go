package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/engine"
	"github.com/gsliepen/lightbts/internal/output"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui       *output.UI
	instance *engine.Instance

	dataDir  string
	fromAddr string
	verbose  bool
	batch    bool
	noHooks  bool
	noEmail  bool
)

var rootCmd = &cobra.Command{
	Use:   "lbt",
	Short: "LightBTS - a light-weight mail-driven bug tracking system",
	Long: `lbt tracks bugs as email threads. Every report and every followup is
a mail message; bug state is changed by control directives in message
bodies. The index can always be rebuilt from the stored messages.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return listRun(nil)
	}

	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Instance directory (default $LIGHTBTS_DIR or .)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&batch, "batch", false, "No interactive input")
	rootCmd.PersistentFlags().BoolVar(&noHooks, "no-hooks", false, "Do not run hooks")
	rootCmd.PersistentFlags().BoolVar(&noEmail, "no-email", false, "Do not send any mail")
	rootCmd.PersistentFlags().StringVar(&fromAddr, "from", "", "Sender address for actions (default your local address)")
}

// senderAddress is the identity recorded on locally performed actions.
func senderAddress() string {
	if fromAddr != "" {
		return fromAddr
	}
	return engine.LocalAddress()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// The instance is opened lazily so init/version/help run without
	// an existing index.
}

// instanceDir resolves the instance directory: flag, then
// $LIGHTBTS_DIR, then the current directory.
func instanceDir() string {
	if dataDir != "" {
		return dataDir
	}
	if dir := os.Getenv("LIGHTBTS_DIR"); dir != "" {
		return dir
	}
	return "."
}

// getInstance returns the shared instance, opening it on first call.
func getInstance() (*engine.Instance, error) {
	if instance != nil {
		return instance, nil
	}

	ins, err := engine.Open(instanceDir(), engine.Options{
		Quiet:   noEmail,
		NoHooks: noHooks,
		Log:     ui,
	})
	if err != nil {
		return nil, err
	}
	instance = ins
	return instance, nil
}
