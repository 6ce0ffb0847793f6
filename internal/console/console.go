// Package console is the interactive shell for driving links in-process.
//
// Commands run against a live registry; status updates, activity entries and
// log records are printed between prompts as they arrive.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/chzyer/readline"

	"symsync/internal/api"
	"symsync/internal/formatting"
	"symsync/internal/registry"
	"symsync/pkg/logging"
)

const (
	promptChevronUnicode = "»"
	promptChevronASCII   = ">"

	defaultLogLines = 20

	// commandExecutionTimeout bounds a single command such as a sync pass.
	commandExecutionTimeout = 5 * time.Minute
)

// Options configures a Console.
type Options struct {
	// Out receives command output. Defaults to os.Stdout.
	Out io.Writer

	Color bool

	// Level filters log records printed between prompts.
	Level logging.LogLevel

	// HistoryFile defaults to $XDG_STATE_HOME/symsync/console_history.
	HistoryFile string
}

// Console is a read-eval-print loop over a registry.
type Console struct {
	registry  *registry.Registry
	formatter formatting.Formatter
	commands  *commandSet
	opts      Options

	out *lockedWriter

	mu         sync.Mutex
	rl         *readline.Instance
	useUnicode bool

	wg sync.WaitGroup
}

// New creates a console for reg.
func New(reg *registry.Registry, opts Options) *Console {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	c := &Console{
		registry:   reg,
		formatter:  formatting.New(formatting.Options{Format: formatting.FormatTable, Color: opts.Color}),
		commands:   newCommandSet(),
		opts:       opts,
		out:        &lockedWriter{w: opts.Out},
		useUnicode: detectUnicodeSupport(),
	}
	c.registerCommands()
	return c
}

// Execute parses and runs one input line. It returns errExit for the exit
// command; see IsExit.
func (c *Console) Execute(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(parts[0])
	cmd, ok := c.commands.get(name)
	if !ok {
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", parts[0])
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandExecutionTimeout)
	defer cancel()
	return cmd.Execute(cmdCtx, parts[1:])
}

// IsExit reports whether err came from the exit command.
func IsExit(err error) bool {
	return errors.Is(err, errExit)
}

// Run reads commands until exit, EOF or ctx cancellation. The caller owns
// the registry and stops its links afterwards.
func (c *Console) Run(ctx context.Context) error {
	logCh := logging.InitForConsole(c.opts.Level)
	defer logging.CloseConsoleChannel()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.buildPrompt(),
		HistoryFile:     c.historyFile(),
		AutoComplete:    c.createCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          c.opts.Out,

		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	c.mu.Lock()
	c.rl = rl
	c.mu.Unlock()
	c.out.set(rl.Stdout())

	unsubscribe := c.registry.Subscribe(c.onStatus)
	defer unsubscribe()
	unsubscribeActivity := c.registry.SubscribeActivity(c.onActivity)
	defer unsubscribeActivity()

	stopCh := make(chan struct{})
	c.wg.Add(1)
	go c.drainLogs(logCh, stopCh)
	defer func() {
		close(stopCh)
		c.wg.Wait()
	}()

	// Readline blocks in a terminal read; closing it unblocks Run.
	go func() {
		select {
		case <-ctx.Done():
			rl.Close()
		case <-stopCh:
		}
	}()

	c.printf("symsync console. Type 'help' for available commands. Use TAB for completion.\n\n")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			c.printf("Goodbye!\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if err := c.Execute(ctx, input); err != nil {
			if IsExit(err) {
				c.printf("Goodbye!\n")
				return nil
			}
			c.printf("Error: %v\n", err)
		}
		c.printf("\n")
	}
}

func (c *Console) historyFile() string {
	if c.opts.HistoryFile != "" {
		return c.opts.HistoryFile
	}
	path, err := xdg.StateFile(filepath.Join("symsync", "console_history"))
	if err != nil {
		logging.Debug("Console", "No history file: %v", err)
		return ""
	}
	return path
}

func (c *Console) createCompleter() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range c.commands.names() {
		cmd, _ := c.commands.get(name)
		if cmd.Completes() {
			items = append(items, readline.PcItem(name, readline.PcItemDynamic(c.linkRefs)))
		} else {
			items = append(items, readline.PcItem(name))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

// buildPrompt shows how many links are in error, e.g. "symsync [1 ERROR] » ".
func (c *Console) buildPrompt() string {
	chevron := promptChevronASCII
	if c.useUnicode {
		chevron = promptChevronUnicode
	}

	parts := []string{"symsync"}
	failed := 0
	for _, info := range c.registry.List() {
		if info.Status.State == api.StateError {
			failed++
		}
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("[%d ERROR]", failed))
	}
	parts = append(parts, chevron)
	return strings.Join(parts, " ") + " "
}

func (c *Console) onStatus(u api.StatusUpdate) {
	c.printAsync(formatting.StatusLine(u, c.opts.Color))
}

// onActivity prints link operations. State entries are skipped because
// onStatus already shows every transition.
func (c *Console) onActivity(e api.ActivityEntry) {
	if e.Kind == api.ActivityState {
		return
	}
	name := shortID(e.LinkID)
	if info, err := c.registry.Get(e.LinkID); err == nil {
		name = info.Config.DisplayName()
	}
	c.printAsync(formatting.ActivityLine(name, e, c.opts.Color))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (c *Console) drainLogs(ch <-chan logging.LogEntry, stopCh <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			line := fmt.Sprintf("[%s] %s: %s", entry.Level, entry.Subsystem, entry.Message)
			if entry.Err != nil {
				line += ": " + entry.Err.Error()
			}
			c.printAsync(line)
		}
	}
}

// printAsync prints a line that arrived between prompts and redraws the
// prompt below it.
func (c *Console) printAsync(line string) {
	c.mu.Lock()
	rl := c.rl
	c.mu.Unlock()

	if rl == nil {
		c.printf("%s\n", line)
		return
	}
	c.printf("\r\033[K%s\n", line)
	rl.SetPrompt(c.buildPrompt())
	rl.Refresh()
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// detectUnicodeSupport checks if the terminal likely supports unicode characters.
func detectUnicodeSupport() bool {
	term := os.Getenv("TERM")
	if term == "" || term == "dumb" {
		return false
	}
	for _, v := range []string{os.Getenv("LC_ALL"), os.Getenv("LANG")} {
		v = strings.ToLower(v)
		if strings.Contains(v, "utf-8") || strings.Contains(v, "utf8") {
			return true
		}
	}
	return !strings.HasPrefix(term, "vt")
}

// lockedWriter serializes command output with asynchronous status lines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriter) set(w io.Writer) {
	l.mu.Lock()
	l.w = w
	l.mu.Unlock()
}
