// Package main provides a CLI for browsing and filling the mixtape sandbox.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/fruitsalade/mixtape/internal/app"
	"github.com/fruitsalade/mixtape/internal/auth"
	"github.com/fruitsalade/mixtape/internal/config"
	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/ingest"
	"github.com/fruitsalade/mixtape/internal/link"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/prompt"
	"github.com/fruitsalade/mixtape/internal/protocol"
	"github.com/fruitsalade/mixtape/internal/records"
	"github.com/fruitsalade/mixtape/internal/tasks"
)

func main() {
	pflag.Usage = printUsage
	sandboxBackend := pflag.String("sandbox", "", "Sandbox store: memory, local or s3 (default $SANDBOX_BACKEND or local)")
	sandboxPath := pflag.String("sandbox-path", "", "Local sandbox directory (default $SANDBOX_PATH)")
	recordStore := pflag.String("records", "", "Record store: badger or postgres (default $RECORD_STORE or badger)")
	badgerPath := pflag.String("badger-path", "", "Badger directory (default $BADGER_PATH)")
	assumeYes := pflag.BoolP("yes", "y", false, "Grant every permission request without asking")
	all := pflag.BoolP("all", "a", false, "ls: show every file, not only audio and links")
	verbose := pflag.BoolP("verbose", "v", false, "Log to stderr")
	tokenTTL := pflag.Duration("ttl", 30*24*time.Hour, "token: validity of issued tokens")
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	cmd, cmdArgs := args[0], args[1:]
	if cmd == "help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	override(&cfg.SandboxBackend, *sandboxBackend)
	override(&cfg.SandboxPath, *sandboxPath)
	override(&cfg.RecordStore, *recordStore)
	override(&cfg.BadgerPath, *badgerPath)
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	if *verbose {
		if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console", OutputPath: "stderr"}); err != nil {
			fatal(err)
		}
		defer logging.Sync()
	} else {
		logging.InitNop()
	}

	if cmd == "token" {
		if err := cmdToken(cfg, *tokenTTL, cmdArgs); err != nil {
			fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompter := prompt.New(os.Stdin, os.Stderr).AssumeYes(*assumeYes)
	a, err := app.New(ctx, cfg, prompter)
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	switch cmd {
	case "list", "ls":
		err = cmdList(ctx, a, *all, cmdArgs)
	case "mkdir":
		err = cmdMkdir(ctx, a, cmdArgs)
	case "rm":
		err = cmdRemove(ctx, a, cmdArgs)
	case "put":
		err = cmdPut(ctx, a, cmdArgs)
	case "cat":
		err = cmdCat(ctx, a, cmdArgs)
	case "mount":
		err = cmdMount(ctx, a, cmdArgs)
	case "link":
		err = cmdLink(ctx, a, cmdArgs)
	case "import":
		err = cmdImport(ctx, a, cmdArgs)
	case "meta":
		err = cmdMeta(ctx, a, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		a.Close()
		fatal(err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `mixtape - browse and fill the music sandbox

Usage: mixtape [flags] <command> [args]

Flags:`)
	pflag.PrintDefaults()
	fmt.Fprintln(os.Stderr, `
Commands:
  ls [path]                 List a sandbox directory
  mkdir <path>              Create a directory
  rm <path>                 Remove a file or directory tree
  put <host-file|-> <path>  Write a file into the sandbox
  cat <path>                Print a file, following file links
  mount <path>              Mount a link and show what it points at
  link <host-path>...       Store host files or directories as links
  import <host-path>...     Copy host audio into the sandbox and index it
  meta [path]               Show indexed audio metadata
  token <subject>           Issue an API token signed with $JWT_SECRET
  help                      Show this help message

Paths cross mounts with "//": the part before it must end in a link.

Examples:
  mixtape import ~/Music/Album
  mixtape link ~/Music
  mixtape ls "@link-local-directory:Music//Album"
  mixtape cat "Album/01 Intro.mp3" > intro.mp3`)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: mixtape %s", usage)
	}
	return nil
}

func cmdList(ctx context.Context, a *app.App, all bool, args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	m, err := a.Navigate(ctx, path)
	if err != nil {
		return err
	}
	items, err := m.ListItems(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tSIZE\tMOUNT")
	for _, h := range items {
		if !all && !a.Browsable(h) {
			continue
		}
		size, strategy := "-", ""
		if f, ok := h.(handle.File); ok && h.Kind() == handle.KindFile {
			if n, err := f.Size(ctx); err == nil {
				size = formatSize(n)
			}
			if strategy, err = m.GetMountStrategy(ctx, h.Name()); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Name(), h.Kind(), size, strategy)
	}
	return w.Flush()
}

func cmdMkdir(ctx context.Context, a *app.App, args []string) error {
	if err := needArgs(args, 1, "mkdir <path>"); err != nil {
		return err
	}
	dir, name := app.SplitPath(strings.TrimSuffix(args[0], "/"))
	m, err := a.Navigate(ctx, dir)
	if err != nil {
		return err
	}
	_, err = m.CreateDirectory(ctx, name)
	return err
}

func cmdRemove(ctx context.Context, a *app.App, args []string) error {
	if err := needArgs(args, 1, "rm <path>"); err != nil {
		return err
	}
	dir, name := app.SplitPath(strings.TrimSuffix(args[0], "/"))
	m, err := a.Navigate(ctx, dir)
	if err != nil {
		return err
	}
	return m.Remove(ctx, name)
}

func cmdPut(ctx context.Context, a *app.App, args []string) error {
	if err := needArgs(args, 2, "put <host-file|-> <path>"); err != nil {
		return err
	}
	var src io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	dest := args[1]
	if strings.HasSuffix(dest, "/") && args[0] != "-" {
		dest += filepath.Base(args[0])
	}
	dir, name := app.SplitPath(dest)
	m, err := a.Navigate(ctx, dir)
	if err != nil {
		return err
	}
	_, err = m.PutFile(ctx, name, src)
	return err
}

func cmdCat(ctx context.Context, a *app.App, args []string) error {
	if err := needArgs(args, 1, "cat <path>"); err != nil {
		return err
	}
	f, err := a.OpenFile(ctx, args[0])
	if err != nil {
		return err
	}
	rc, err := f.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(os.Stdout, rc)
	return err
}

func cmdMount(ctx context.Context, a *app.App, args []string) error {
	if err := needArgs(args, 1, "mount <path>"); err != nil {
		return err
	}
	dir, name := app.SplitPath(args[0])
	m, err := a.Navigate(ctx, dir)
	if err != nil {
		return err
	}
	strategy, err := m.GetMountStrategy(ctx, name)
	if err != nil {
		return err
	}
	target, err := m.Mount(ctx, name)
	if err != nil {
		return err
	}

	if target != nil {
		desc := target.Name()
		if l, ok := target.(handle.Locatable); ok {
			desc = l.Locator().String()
		}
		fmt.Printf("%s (%s): file %s\n", name, strategy, desc)
		return nil
	}
	items, err := m.ListItems(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s): directory, %d entries, mount depth %d\n", name, strategy, len(items), m.Depth())
	return nil
}

func cmdLink(ctx context.Context, a *app.App, args []string) error {
	if err := needArgs(args, 1, "link <host-path>..."); err != nil {
		return err
	}
	b, err := a.Pick(ctx, args, false)
	if err != nil {
		return err
	}
	recs, err := a.Linker.Link(ctx, b)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Printf("%s -> %s\n", link.Link{Source: r.Source, Kind: r.Kind, DisplayName: r.Name}, r.Locator)
	}
	return nil
}

func cmdImport(ctx context.Context, a *app.App, args []string) error {
	if err := needArgs(args, 1, "import <host-path>..."); err != nil {
		return err
	}
	b, err := a.Pick(ctx, args, true)
	if err != nil {
		return err
	}
	if len(b.Files) == 0 && len(b.Directories) == 0 {
		fmt.Println("Nothing to import")
		return nil
	}
	return runImport(ctx, a, b, os.Stdout)
}

// runImport submits b and reports progress until the batch ends.
func runImport(ctx context.Context, a *app.App, b ingest.Batch, out io.Writer) error {
	if err := a.Worker.Start(ctx); err != nil {
		return err
	}
	req := protocol.NewRequest(b)
	if err := a.Worker.Submit(ctx, req); err != nil {
		return err
	}

	tracker := tasks.NewTracker()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-a.Worker.Events():
			if !ok {
				return errors.New("worker stopped")
			}
			tracker.Apply(e)
			task, _ := tracker.Get(req.ID)
			switch e := e.(type) {
			case protocol.DirectoriesProgress:
				fmt.Fprintf(out, "%d directories created\n", e.DirectoriesDone)
			case protocol.FilesProgress:
				fmt.Fprintf(out, "\r%s: %d/%d files (%d%%)", task.Display, task.PartsDone, task.PartsCount, task.Percent())
			case protocol.Done:
				fmt.Fprintf(out, "\nImported %d files\n", task.PartsCount)
				return nil
			case protocol.Failed:
				fmt.Fprintln(out)
				return fmt.Errorf("import failed after %d of %d files: %s", task.PartsDone, task.PartsCount, e.Error)
			}
		}
	}
}

func cmdMeta(ctx context.Context, a *app.App, args []string) error {
	if len(args) > 0 {
		m, err := a.Store.GetAudio(ctx, records.SourceLocal, ingest.SandboxPath(args[0]))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	list, err := a.Store.ListAudio(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No metadata indexed")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tARTIST\tALBUM\tTITLE\tTRACK")
	for _, m := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", m.Path, strings.Join(m.Artists, ", "), m.Album, m.Title, m.TrackNumber)
	}
	return w.Flush()
}

func cmdToken(cfg *config.Config, ttl time.Duration, args []string) error {
	if err := needArgs(args, 1, "token <subject>"); err != nil {
		return err
	}
	a, err := auth.New(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("JWT_SECRET must be set: %w", err)
	}
	token, expires, err := a.IssueToken(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
