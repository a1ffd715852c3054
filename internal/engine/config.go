package engine

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/viper"
)

// ConfigFile is the per-instance configuration file name.
const ConfigFile = "lightbts.conf"

// Config is the resolved configuration of an instance. The engine
// consumes it as an opaque set of paths and options.
type Config struct {
	Project        string
	Admin          string
	EmailAddress   string
	SMTPHost       string
	HooksDir       string
	RespondToNew   bool
	RespondToReply bool
	Quiet          bool
	WebRoot        string
}

func defaultEmailAddress() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	name := "lightbts"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return name + "@" + host
}

// LoadConfig reads lightbts.conf from dir, falling back to defaults
// for anything unset. A missing file is not an error.
func LoadConfig(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, ConfigFile))
	v.SetConfigType("ini")

	v.SetDefault("core.project", "LightBTS")
	v.SetDefault("core.admin", "")
	v.SetDefault("core.hooks", filepath.Join(dir, "hooks"))
	v.SetDefault("core.respond-to-new", true)
	v.SetDefault("core.respond-to-reply", true)
	v.SetDefault("core.quiet", false)
	v.SetDefault("email.address", defaultEmailAddress())
	v.SetDefault("email.smtphost", "localhost")
	v.SetDefault("web.root", "/")

	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", ConfigFile, err)
		}
	}

	return Config{
		Project:        v.GetString("core.project"),
		Admin:          v.GetString("core.admin"),
		EmailAddress:   v.GetString("email.address"),
		SMTPHost:       v.GetString("email.smtphost"),
		HooksDir:       v.GetString("core.hooks"),
		RespondToNew:   v.GetBool("core.respond-to-new"),
		RespondToReply: v.GetBool("core.respond-to-reply"),
		Quiet:          v.GetBool("core.quiet"),
		WebRoot:        v.GetString("web.root"),
	}, nil
}

// WriteDefaultConfig creates dir and writes a starter lightbts.conf
// if none exists yet.
func WriteDefaultConfig(dir, project, admin string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create instance directory: %w", err)
	}
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if project == "" {
		project = "LightBTS"
	}
	content := fmt.Sprintf(`[core]
project = %s
admin = %s
respond-to-new = true
respond-to-reply = true

[email]
address = %s
smtphost = localhost

[web]
root = /
`, project, admin, defaultEmailAddress())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ConfigFile, err)
	}
	return nil
}
