// Command notesctl inspects and edits the speaker notes of .pptx files from
// the command line. It drives the same editing pipeline as the souffleur
// server, so a preview here shows exactly what the server would write.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/hazyhaar/souffleur/deckcache"
	"github.com/hazyhaar/souffleur/editor"
	"github.com/hazyhaar/souffleur/pptx"
	"github.com/hazyhaar/souffleur/rezip"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	color.NoColor = os.Getenv("NO_COLOR") != "" ||
		(!isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "dump":
		err = cmdDump(os.Args[2:])
	case "apply":
		err = cmdApply(ctx, os.Args[2:])
	case "preview":
		err = cmdPreview(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "notesctl: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "notesctl: %v\n", err)
		var uerr usageError
		if errors.As(err, &uerr) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `notesctl - inspect and edit .pptx speaker notes

Usage:
  notesctl dump <deck.pptx> [-o notes.json]
      Print every slide's title, visibility and notes text as JSON.

  notesctl apply <deck.pptx> <updates.json> (--in-place | -o out.pptx)
      Apply notes updates. Exactly one destination is required: --in-place
      rewrites the deck atomically, -o writes the result elsewhere.

  notesctl preview <deck.pptx> <updates.json>
      Show a per-slide diff of current vs proposed notes and the archive
      entries a commit would rewrite. The file is not touched.

Updates file format, either shape:
  {"slides": [{"slide": 2, "notes": "new text"}, ...]}
  {"2": "new text", "5": "other text"}

Exit codes: 0 success, 1 usage error, 2 operation failure.
`)
}

// usageError makes a command fail with exit code 1 instead of 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// newService builds an editor service with no workspace restrictions. The
// operator invoking the CLI already has shell access to the file, so the
// sandboxing that matters on the server has nothing to add here.
func newService() (*editor.Service, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cache := deckcache.New(deckcache.Config{Logger: logger})
	return editor.New(cache, nil, logger)
}

func cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	out := fs.String("o", "", "write JSON to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return usagef("dump: %v", err)
	}
	if fs.NArg() != 1 {
		return usagef("dump: expected exactly one deck path, got %d", fs.NArg())
	}

	deck, err := pptx.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	type dumpSlide struct {
		Slide  int    `json:"slide"`
		Title  string `json:"title,omitempty"`
		Hidden bool   `json:"hidden,omitempty"`
		Notes  string `json:"notes"`
	}
	doc := struct {
		File       string      `json:"file"`
		SlideCount int         `json:"slide_count"`
		Slides     []dumpSlide `json:"slides"`
	}{
		File:       deck.Path,
		SlideCount: len(deck.Slides),
	}
	for _, s := range deck.Slides {
		doc.Slides = append(doc.Slides, dumpSlide{
			Slide:  s.Number,
			Title:  s.Title,
			Hidden: s.Hidden,
			Notes:  s.NotesText,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if *out != "" {
		return os.WriteFile(*out, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func cmdApply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	inPlace := fs.Bool("in-place", false, "rewrite the deck in place")
	out := fs.String("o", "", "write the edited deck to this path")
	if err := fs.Parse(args); err != nil {
		return usagef("apply: %v", err)
	}
	if fs.NArg() != 2 {
		return usagef("apply: expected <deck.pptx> <updates.json>, got %d args", fs.NArg())
	}
	if *inPlace == (*out != "") {
		return usagef("apply: exactly one of --in-place or -o is required")
	}

	updates, err := loadUpdates(fs.Arg(1))
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	res, err := svc.ApplyUpdates(ctx, fs.Arg(0), updates, editor.Options{OutputPath: *out})
	if err != nil {
		return err
	}

	fmt.Printf("updated %d slide(s) in %s\n", len(res.UpdatedSlides), res.Path)
	if len(res.CreatedParts) > 0 {
		fmt.Printf("created %d notes part(s)\n", len(res.CreatedParts))
	}
	return nil
}

func cmdPreview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return usagef("preview: %v", err)
	}
	if fs.NArg() != 2 {
		return usagef("preview: expected <deck.pptx> <updates.json>, got %d args", fs.NArg())
	}

	updates, err := loadUpdates(fs.Arg(1))
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	prev, err := svc.PreviewUpdates(ctx, fs.Arg(0), updates)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintfFunc()
	for _, sd := range prev.Slides {
		label := fmt.Sprintf("slide %d", sd.Slide)
		if sd.CreatesPart {
			label += " (new notes part)"
		}
		fmt.Println(bold("--- %s ---", label))
		fmt.Println(renderDiff(sd.Old, sd.New))
	}

	kept := 0
	fmt.Println(bold("--- archive ---"))
	for _, e := range prev.Entries {
		if e.Action == rezip.Kept {
			kept++
			continue
		}
		fmt.Printf("  %-8s %s\n", e.Action, e.Name)
	}
	fmt.Printf("  %d entries kept as-is\n", kept)
	return nil
}

// renderDiff returns old vs new with insertions in green and deletions in
// red strikethrough. Colors degrade to plain text when stdout is not a
// terminal.
func renderDiff(oldText, newText string) string {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed, color.CrossedOut).SprintFunc()

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString(green(d.Text))
		case diffmatchpatch.DiffDelete:
			b.WriteString(red(d.Text))
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// loadUpdates reads an updates file in either accepted shape: a "slides"
// array, or a flat object mapping slide numbers to notes text.
func loadUpdates(path string) ([]editor.Update, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	updates, err := parseUpdates(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return updates, nil
}

func parseUpdates(data []byte) ([]editor.Update, error) {
	var wrapped struct {
		Slides []struct {
			Slide int    `json:"slide"`
			Notes string `json:"notes"`
		} `json:"slides"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Slides) > 0 {
		updates := make([]editor.Update, 0, len(wrapped.Slides))
		for _, s := range wrapped.Slides {
			updates = append(updates, editor.Update{Slide: s.Slide, Text: s.Notes})
		}
		return updates, nil
	}

	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil || len(mapping) == 0 {
		return nil, errors.New(`updates must be {"slides":[{"slide":N,"notes":"..."}]} or {"N":"..."}`)
	}
	updates := make([]editor.Update, 0, len(mapping))
	for key, text := range mapping {
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("slide key %q is not a number", key)
		}
		updates = append(updates, editor.Update{Slide: n, Text: text})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Slide < updates[j].Slide })
	return updates, nil
}
