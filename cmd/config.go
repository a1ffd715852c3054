package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gsliepen/lightbts/internal/engine"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit the instance configuration",
	Long: `Show the effective configuration of the instance.

Running bare 'lbt config' is the same as 'lbt config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <section.option>",
	Short: "Get a configuration option",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return configGetRun(args[0])
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <section.option> <value>",
	Short: "Set a configuration option",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return configSetRun(args[0], args[1])
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the configuration file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

func configShowRun() error {
	dir := instanceDir()
	cfg, err := engine.LoadConfig(dir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, engine.ConfigFile)
	if _, err := os.Stat(path); err == nil {
		ui.Info("Config file: %s", path)
	} else {
		ui.Info("Config file: (none, showing defaults)")
	}
	fmt.Fprintln(ui.Out)

	// YAML is only the display format; the file itself is INI.
	view := map[string]any{
		"core": map[string]any{
			"project":          cfg.Project,
			"admin":            cfg.Admin,
			"hooks":            cfg.HooksDir,
			"respond-to-new":   cfg.RespondToNew,
			"respond-to-reply": cfg.RespondToReply,
			"quiet":            cfg.Quiet,
		},
		"email": map[string]any{
			"address":  cfg.EmailAddress,
			"smtphost": cfg.SMTPHost,
		},
		"web": map[string]any{
			"root": cfg.WebRoot,
		},
	}
	data, err := yaml.Marshal(view)
	if err != nil {
		return err
	}
	fmt.Fprint(ui.Out, string(data))
	return nil
}

func configFileViper() (*viper.Viper, string, error) {
	path := filepath.Join(instanceDir(), engine.ConfigFile)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, "", fmt.Errorf("config file not found: %s (run 'lbt init' first)", path)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	return v, path, nil
}

func configGetRun(key string) error {
	if !strings.Contains(key, ".") {
		return fmt.Errorf("option must be given as section.option, e.g. core.project")
	}

	v, _, err := configFileViper()
	if err != nil {
		return err
	}

	if !v.IsSet(key) {
		return fmt.Errorf("option %q is not set", key)
	}
	fmt.Fprintln(ui.Out, v.GetString(key))
	return nil
}

func configSetRun(key, value string) error {
	if !strings.Contains(key, ".") {
		return fmt.Errorf("option must be given as section.option, e.g. core.project")
	}

	v, path, err := configFileViper()
	if err != nil {
		return err
	}

	v.Set(key, value)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	ui.Success("Set %s = %s", key, value)
	return nil
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set")
	}

	path := filepath.Join(instanceDir(), engine.ConfigFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'lbt init' first)", path)
	}

	editCmd := exec.Command(editor, path)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
