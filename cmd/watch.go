package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"

	"github.com/latticehq/lattice/internal/registry"
)

// debounceInterval coalesces editor write bursts into one re-validation.
const debounceInterval = 250 * time.Millisecond

// ValidateCmd validates a catalogue file without touching the store.
type ValidateCmd struct {
	File  string `arg:"" optional:"" help:"Catalogue file (defaults to .lattice/catalogue.yaml)"`
	Watch bool   `help:"Re-validate whenever the file changes"`
}

// Run executes the validate command.
func (c *ValidateCmd) Run() error {
	path := c.File
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		path = filepath.Join(cwd, dataDirName, "catalogue.yaml")
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	if !c.Watch {
		return validateOnce(path)
	}

	// First pass immediately; watch mode keeps going on failures so the
	// author sees each save's verdict.
	_ = validateOnce(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: editors replace files on save,
	// which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	fmt.Printf("Watching %s (ctrl-c to stop)\n", path)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case <-pending:
			_ = validateOnce(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			color.Red("watch error: %v", err)

		case <-sigChan:
			fmt.Println("\nStopping watch")
			return nil
		}
	}
}

func validateOnce(path string) error {
	reg, err := registry.LoadFile(path)
	if err != nil {
		color.Red("✗ %v", err)
		return err
	}
	color.Green("✓ %s: %d edge types valid", filepath.Base(path), len(reg.All()))
	return nil
}
