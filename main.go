package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"aitester/block"
	"aitester/config"
	"aitester/document"
	"aitester/generation"
	"aitester/provider"
	"aitester/storage"
	"aitester/ui"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

type options struct {
	block    int
	language string
	list     bool
	run      bool
	history  int
	models   bool
	provider string
	use      string
	set      string
	version  bool
}

func parseFlags() (options, []string) {
	var o options
	flag.IntVar(&o.block, "block", 1, "block to open (1-based)")
	flag.StringVar(&o.language, "lang", "", "fenced-code language that marks prompt blocks")
	flag.BoolVar(&o.list, "list", false, "list the prompt blocks of the document and exit")
	flag.BoolVar(&o.run, "run", false, "generate the block without the UI and print the responses")
	flag.IntVar(&o.history, "history", 0, "print the last N recorded generations and exit")
	flag.BoolVar(&o.models, "models", false, "list the models of a provider and exit")
	flag.StringVar(&o.provider, "provider", "", "provider for -models (default: active provider)")
	flag.StringVar(&o.use, "use", "", "set the default provider for -models and exit")
	flag.StringVar(&o.set, "set", "", "update a provider setting, e.g. openai.model=gpt-4o")
	flag.BoolVar(&o.version, "version", false, "print the version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: aitester [flags] <document.md>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	return o, flag.Args()
}

func main() {
	opts, args := parseFlags()

	if opts.version {
		fmt.Printf("aitester %s (%s)\n", Version, License)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("Configuration Error", fmt.Sprintf("Failed to load config: %v", err), opts.interactive())
	}

	config.InitDebugLog(cfg.DataDir())
	if config.DebugLog != nil {
		config.DebugLog.Printf("aitester %s starting, data dir %s", Version, cfg.DataDir())
	}

	switch {
	case opts.use != "":
		if err := config.SetActiveProvider(cfg.DataDir(), opts.use); err != nil {
			exitErr(err)
		}
		fmt.Printf("Default provider for -models: %s\n", config.DisplayName(opts.use))
		return

	case opts.set != "":
		if err := setField(cfg.DataDir(), opts.set); err != nil {
			exitErr(err)
		}
		return
	}

	registry := provider.NewRegistry(cfg, &http.Client{})

	if opts.models {
		if err := listModels(registry, cfg, opts.provider); err != nil {
			exitErr(err)
		}
		return
	}

	history, err := storage.NewHistoryStorage(cfg.DataDir())
	if err != nil {
		fatal("Storage Error", fmt.Sprintf("Failed to open generation history: %v", err), opts.interactive())
	}
	defer history.Close()

	if opts.history > 0 {
		doc := ""
		if len(args) > 0 {
			doc = args[0]
		}
		if err := printHistory(history, doc, opts.history); err != nil {
			exitErr(err)
		}
		return
	}

	if len(args) != 1 {
		flag.Usage()
		os.Exit(2)
	}

	language := opts.language
	if language == "" {
		language = cfg.BlockLanguage
	}
	doc, err := document.Open(args[0], language)
	if err != nil {
		fatal("Document Error", err.Error(), opts.interactive())
	}

	if opts.list {
		listBlocks(doc)
		return
	}

	blocks := doc.Blocks()
	if len(blocks) == 0 {
		fatal("No Prompt Blocks",
			fmt.Sprintf("%s contains no ```%s blocks.", args[0], doc.Language()), opts.interactive())
	}
	index := opts.block - 1
	if index < 0 || index >= len(blocks) {
		fatal("Block Not Found",
			fmt.Sprintf("Block %d does not exist; the document has %d.", opts.block, len(blocks)), opts.interactive())
	}

	runner := generation.NewRunner(registry, generation.WithRecorder(history))

	if opts.run {
		code := runHeadless(runner, doc, blocks[index])
		history.Close()
		os.Exit(code)
	}

	view, err := ui.NewBlockView(ui.Options{
		Config:     cfg,
		Keys:       loadKeybindings(cfg.DataDir()),
		Providers:  registry,
		Runner:     runner,
		Document:   doc,
		BlockIndex: index,
	})
	if err != nil {
		fatal("Document Error", err.Error(), true)
	}

	p := tea.NewProgram(view, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running aitester: %v\n", err)
		os.Exit(1)
	}
}

// interactive reports whether errors should be shown in the TUI modal.
func (o options) interactive() bool {
	return !o.run && !o.list && !o.models && o.history == 0 && o.use == "" && o.set == ""
}

func fatal(title, message string, interactive bool) {
	if !interactive {
		fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
		os.Exit(1)
	}

	p := tea.NewProgram(ui.NewErrorModal(title, message), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func loadKeybindings(dataDir string) *config.KeyBindingsConfig {
	kb, err := config.LoadKeybindings(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		return config.DefaultKeybindings()
	}
	if ok, warning := kb.Validate(); !ok {
		fmt.Fprintf(os.Stderr, "Warning: %s (using defaults)\n", warning)
		return config.DefaultKeybindings()
	} else if warning != "" && config.DebugLog != nil {
		config.DebugLog.Printf("keybindings: %s", warning)
	}
	return kb
}

// setField applies "provider.field=value".
func setField(dataDir, assignment string) error {
	target, value, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("expected provider.field=value, got %q", assignment)
	}
	providerID, field, ok := strings.Cut(target, ".")
	if !ok {
		return fmt.Errorf("expected provider.field=value, got %q", assignment)
	}
	if err := config.UpdateProviderField(dataDir, providerID, field, value); err != nil {
		return err
	}
	fmt.Printf("Updated %s %s\n", config.DisplayName(providerID), field)
	return nil
}

func listModels(registry *provider.Registry, cfg *config.Config, providerID string) error {
	if providerID == "" {
		providerID = cfg.ActiveProvider
	}
	p, err := registry.Resolve(providerID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	list, err := p.ListModels(ctx)
	if err != nil {
		return err
	}
	if list.Notice != "" {
		fmt.Fprintln(os.Stderr, list.Notice)
	}
	category := ""
	for _, m := range list.Models {
		if m.Category != category {
			fmt.Printf("%s:\n", m.Category)
			category = m.Category
		}
		line := "  " + m.ID
		if m.Name != "" && m.Name != m.ID {
			line += "  (" + m.Name + ")"
		}
		if m.Details != "" {
			line += "  " + m.Details
		}
		fmt.Println(line)
	}
	return nil
}

func listBlocks(doc *document.Document) {
	for _, b := range doc.Blocks() {
		s := b.Settings()
		first, _, _ := strings.Cut(s.Prompt, "\n")
		model := s.Config.Model
		if model == "" {
			model = "default"
		}
		fmt.Printf("%d\tlines %d-%d\t%s/%s\t%s\n",
			b.Index+1, b.LineStart+1, b.LineEnd+1, s.Config.Provider, model, first)
	}
}

func printHistory(history *storage.HistoryStorage, doc string, limit int) error {
	var (
		gens []storage.Generation
		err  error
	)
	if doc != "" {
		gens, err = history.ForDocument(doc, limit)
	} else {
		gens, err = history.Recent(limit)
	}
	if err != nil {
		return err
	}
	for _, g := range gens {
		first, _, _ := strings.Cut(g.Prompt, "\n")
		fmt.Printf("%s  %s/%s  %d+%d tkn  %s  %s\n",
			g.CreatedAt.Local().Format(time.DateTime), g.Provider, g.Model,
			g.PromptTokens, g.CompletionTokens, g.Duration.Round(time.Millisecond), first)
	}
	return nil
}

// runHeadless generates one block to stdout. Ctrl+C cancels the batch.
func runHeadless(runner *generation.Runner, doc *document.Document, b document.Block) int {
	s := b.Settings()
	if s.Prompt == "" {
		fmt.Fprintln(os.Stderr, "Error: block has no prompt")
		return 1
	}
	for _, w := range block.Validate(s.Config) {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sink := generation.NewWriterSink(os.Stdout, s.Config.Responses())
	out, err := runner.Submit(ctx, generation.Request{
		Settings:   s,
		Document:   doc.Path(),
		BlockIndex: b.Index,
	}, sink)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch out.State {
	case generation.StateCancelled:
		return 130
	case generation.StateFailed:
		return 1
	}
	return 0
}
