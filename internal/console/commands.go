package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"symsync/internal/api"
	"symsync/internal/formatting"
	"symsync/internal/registry"
)

// errExit is returned by the exit command to leave the loop.
var errExit = errors.New("exit")

// Command is one console verb.
type Command interface {
	Execute(ctx context.Context, args []string) error
	Usage() string
	Description() string
	Aliases() []string

	// Completes reports whether the first argument is a link reference.
	Completes() bool
}

// commandSet maps names and aliases to commands.
type commandSet struct {
	commands map[string]Command
	aliases  map[string]string
}

func newCommandSet() *commandSet {
	return &commandSet{
		commands: make(map[string]Command),
		aliases:  make(map[string]string),
	}
}

func (s *commandSet) register(name string, cmd Command) {
	s.commands[name] = cmd
	for _, alias := range cmd.Aliases() {
		s.aliases[alias] = name
	}
}

func (s *commandSet) get(name string) (Command, bool) {
	if cmd, ok := s.commands[name]; ok {
		return cmd, true
	}
	if primary, ok := s.aliases[name]; ok {
		cmd, ok := s.commands[primary]
		return cmd, ok
	}
	return nil, false
}

func (s *commandSet) names() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// commandFunc adapts a function and its help text to Command.
type commandFunc struct {
	usage       string
	description string
	aliases     []string
	linkArg     bool
	run         func(ctx context.Context, args []string) error
}

func (c *commandFunc) Execute(ctx context.Context, args []string) error { return c.run(ctx, args) }
func (c *commandFunc) Usage() string                                    { return c.usage }
func (c *commandFunc) Description() string                              { return c.description }
func (c *commandFunc) Aliases() []string                                { return c.aliases }
func (c *commandFunc) Completes() bool                                  { return c.linkArg }

func (c *Console) registerCommands() {
	c.commands.register("help", &commandFunc{
		usage:       "help",
		description: "Show available commands",
		aliases:     []string{"?", "h"},
		run:         c.help,
	})
	c.commands.register("list", &commandFunc{
		usage:       "list",
		description: "List links and their state",
		aliases:     []string{"ls"},
		run:         c.list,
	})
	c.commands.register("start", &commandFunc{
		usage:       "start <link>",
		description: "Start watching a link",
		linkArg:     true,
		run:         c.start,
	})
	c.commands.register("stop", &commandFunc{
		usage:       "stop <link>",
		description: "Stop watching a link; its symlinks stay in place",
		linkArg:     true,
		run:         c.stop,
	})
	c.commands.register("status", &commandFunc{
		usage:       "status [link]",
		description: "Show the status of one or all links",
		aliases:     []string{"st"},
		linkArg:     true,
		run:         c.status,
	})
	c.commands.register("log", &commandFunc{
		usage:       "log <link> [n]",
		description: "Show the most recent activity of a link",
		linkArg:     true,
		run:         c.log,
	})
	c.commands.register("sync", &commandFunc{
		usage:       "sync <link>",
		description: "Run a reconcile pass now",
		linkArg:     true,
		run:         c.sync,
	})
	c.commands.register("interval", &commandFunc{
		usage:       "interval <link> <seconds>",
		description: "Change the rescan interval, also while watching",
		linkArg:     true,
		run:         c.interval,
	})
	c.commands.register("exit", &commandFunc{
		usage:       "exit",
		description: "Leave the console",
		aliases:     []string{"quit", "q"},
		run:         func(context.Context, []string) error { return errExit },
	})
}

func (c *Console) help(_ context.Context, _ []string) error {
	c.printf("Available commands:\n")
	for _, name := range c.commands.names() {
		cmd, _ := c.commands.get(name)
		c.printf("  %-26s %s\n", cmd.Usage(), cmd.Description())
	}
	return nil
}

func (c *Console) list(_ context.Context, _ []string) error {
	return c.formatter.FormatLinks(c.out, formatting.NewLinkViews(c.registry.List()))
}

func (c *Console) start(ctx context.Context, args []string) error {
	id, err := c.resolveArg(args, "start <link>")
	if err != nil {
		return err
	}
	return c.registry.Start(ctx, id)
}

func (c *Console) stop(_ context.Context, args []string) error {
	id, err := c.resolveArg(args, "stop <link>")
	if err != nil {
		return err
	}
	return c.registry.Stop(id)
}

func (c *Console) status(_ context.Context, args []string) error {
	var infos []registry.LinkInfo
	if len(args) == 0 {
		infos = c.registry.List()
	} else {
		id, err := c.registry.Resolve(args[0])
		if err != nil {
			return err
		}
		info, err := c.registry.Get(id)
		if err != nil {
			return err
		}
		infos = []registry.LinkInfo{info}
	}

	for _, info := range infos {
		line := fmt.Sprintf("%-20s %-9s %s", info.Config.DisplayName(), info.Status.State, info.Status.Message)
		if !info.Status.LastReconcile.IsZero() {
			line += fmt.Sprintf(" (last pass %s: %s)",
				info.Status.LastReconcile.Local().Format("15:04:05"), info.Status.LastReport)
		}
		if m, err := c.registry.Metrics(info.Config.ID); err == nil && m.Passes+m.Failures > 0 {
			line += fmt.Sprintf(" [passes %d, failed %d]", m.Passes, m.Failures)
		}
		c.printf("%s\n", line)
	}

	if len(args) == 0 {
		if s := c.registry.MetricsSummary(); s.TotalPasses+s.TotalFailures > 0 {
			c.printf("Total: passes %d, failed %d (%.1f%% failure rate)\n", s.TotalPasses, s.TotalFailures, s.FailureRate*100)
		}
	}
	return nil
}

func (c *Console) interval(_ context.Context, args []string) error {
	const usage = "interval <link> <seconds>"
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", usage)
	}
	id, err := c.registry.Resolve(args[0])
	if err != nil {
		return err
	}
	seconds, err := strconv.Atoi(args[1])
	if err != nil || seconds <= 0 {
		return fmt.Errorf("invalid interval %q", args[1])
	}
	d := time.Duration(seconds) * time.Second
	if err := c.registry.SetInterval(id, d); err != nil {
		return err
	}
	info, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	c.printf("Rescan interval of %s set to %s\n", info.Config.DisplayName(), d)
	return nil
}

func (c *Console) log(_ context.Context, args []string) error {
	id, err := c.resolveArg(args, "log <link> [n]")
	if err != nil {
		return err
	}
	n := defaultLogLines
	if len(args) > 1 {
		n, err = strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid line count %q", args[1])
		}
	}
	entries, err := c.registry.Tail(id, n)
	if err != nil {
		return err
	}
	info, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	return c.formatter.FormatActivity(c.out, formatting.NewActivityViews(info.Config.DisplayName(), entries))
}

func (c *Console) sync(ctx context.Context, args []string) error {
	id, err := c.resolveArg(args, "sync <link>")
	if err != nil {
		return err
	}
	info, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	report, err := c.registry.Sync(ctx, id)
	if err != nil {
		return err
	}
	if info.Status.State == api.StateWatching {
		c.printf("Reconcile queued for %s\n", info.Config.DisplayName())
		return nil
	}
	return c.formatter.FormatReport(c.out, formatting.NewReportView(info.Config.DisplayName(), report))
}

func (c *Console) resolveArg(args []string, usage string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("usage: %s", usage)
	}
	return c.registry.Resolve(args[0])
}

// linkRefs lists names for completion, falling back to ids for unnamed links.
func (c *Console) linkRefs(string) []string {
	var refs []string
	for _, info := range c.registry.List() {
		ref := info.Config.Name
		if ref == "" || strings.ContainsAny(ref, " \t") {
			ref = info.Config.ID
		}
		refs = append(refs, ref)
	}
	return refs
}
