// Package engine ties the instance together: configuration, the
// relational index, the content-addressed message store, hooks and the
// mail transport. Its central operation is Import, which runs an
// inbound message through the full indexing pipeline.
package engine

import (
	"fmt"
	"path/filepath"

	"github.com/gsliepen/lightbts/internal/hooks"
	"github.com/gsliepen/lightbts/internal/index"
	"github.com/gsliepen/lightbts/internal/mailer"
	"github.com/gsliepen/lightbts/internal/msgstore"
)

// IndexFile and StoreDir name the index database and the message store
// inside an instance directory.
const (
	IndexFile = "index"
	StoreDir  = "messages"
)

// Logger is what the engine needs from the UI. *output.UI satisfies
// it.
type Logger interface {
	Info(format string, a ...any)
	Warning(format string, a ...any)
	VerboseLog(format string, a ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)       {}
func (nopLogger) Warning(string, ...any)    {}
func (nopLogger) VerboseLog(string, ...any) {}

// Options adjust how an instance is opened. The zero value gives a
// fully operational instance with SMTP delivery and hooks enabled.
type Options struct {
	Quiet     bool // suppress all outgoing mail
	NoHooks   bool
	Log       Logger
	Transport mailer.Transport // overrides the SMTP transport when set
}

// Instance is an open LightBTS instance rooted at a directory.
type Instance struct {
	BaseDir   string
	Config    Config
	Index     *index.Index
	Store     *msgstore.Store
	Hooks     *hooks.Runner
	Transport mailer.Transport
	Log       Logger

	quiet bool
}

// Open loads the configuration from dir and opens the message store
// and the index, applying any pending schema migrations.
func Open(dir string, opts Options) (*Instance, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve instance directory: %w", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	store, err := msgstore.Open(filepath.Join(dir, StoreDir))
	if err != nil {
		return nil, err
	}

	ix, err := index.Open(filepath.Join(dir, IndexFile), index.Env{
		BaseDir: dir,
		Store:   store,
	})
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}

	transport := opts.Transport
	if transport == nil {
		transport = &mailer.SMTP{Host: cfg.SMTPHost}
	}

	return &Instance{
		BaseDir: dir,
		Config:  cfg,
		Index:   ix,
		Store:   store,
		Hooks: &hooks.Runner{
			Dir:      cfg.HooksDir,
			BaseDir:  dir,
			Disabled: opts.NoHooks,
		},
		Transport: transport,
		Log:       log,
		quiet:     opts.Quiet || cfg.Quiet,
	}, nil
}

// Init creates a fresh instance directory with a default
// configuration, an empty index and an empty message store.
func Init(dir, project, admin string) error {
	if err := WriteDefaultConfig(dir, project, admin); err != nil {
		return err
	}
	ins, err := Open(dir, Options{Quiet: true, NoHooks: true})
	if err != nil {
		return err
	}
	return ins.Close()
}

// Close releases the index. The store and hooks hold no resources.
func (ins *Instance) Close() error {
	return ins.Index.Close()
}
