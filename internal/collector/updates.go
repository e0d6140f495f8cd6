package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"hoststatus/internal/summarizer"
)

const defaultUpdateCheckTimeout = 60 * time.Second

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type updateCommand struct {
	name     string
	args     []string
	parse    func(stdout string) []string
	header   string
	upToDate string
}

var updateCommands = map[string]updateCommand{
	"linux": {
		name:     "apt",
		args:     []string{"list", "--upgradable"},
		parse:    aptUpdates,
		header:   "Upgradable packages:",
		upToDate: "All packages are up to date.",
	},
	"darwin": {
		name:     "softwareupdate",
		args:     []string{"-l"},
		parse:    softwareUpdates,
		header:   "Available updates:",
		upToDate: "All software is up to date.",
	},
	"windows": {
		name:     "powershell",
		args:     []string{"-NoProfile", "-Command", "Get-WindowsUpdate -IgnoreReboot"},
		parse:    nonEmptyLines,
		header:   "Available updates:",
		upToDate: "All software is up to date.",
	},
}

// UpdateCollector describes pending OS package updates as free-form text.
type UpdateCollector struct {
	run     Runner
	goos    string
	timeout time.Duration
	log     *slog.Logger
}

type UpdateOption func(*UpdateCollector)

func WithRunner(run Runner) UpdateOption {
	return func(c *UpdateCollector) {
		if run != nil {
			c.run = run
		}
	}
}

func WithGOOS(goos string) UpdateOption {
	return func(c *UpdateCollector) {
		c.goos = goos
	}
}

func WithUpdateCheckTimeout(timeout time.Duration) UpdateOption {
	return func(c *UpdateCollector) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func NewUpdateCollector(log *slog.Logger, opts ...UpdateOption) *UpdateCollector {
	c := &UpdateCollector{
		run:     execRunner,
		goos:    runtime.GOOS,
		timeout: defaultUpdateCheckTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect runs the platform's package manager. A failed check is described in
// the returned text so the report still goes out.
func (c *UpdateCollector) Collect(ctx context.Context) (summarizer.Input, error) {
	cmd, ok := updateCommands[c.goos]
	if !ok {
		c.log.WarnContext(ctx, "Update check is not supported",
			"goos", c.goos)

		return summarizer.Input{Text: fmt.Sprintf("Update check is not supported on %s.", c.goos)}, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	stdout, err := c.run(checkCtx, cmd.name, cmd.args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summarizer.Input{}, fmt.Errorf("check updates: %w", ctxErr)
		}

		c.log.ErrorContext(ctx, "Failed to check updates",
			"error", err,
			"command", cmd.name,
			"durationSeconds", time.Since(start).Seconds())

		return summarizer.Input{Text: "Failed to check updates: " + describeRunError(checkCtx, err)}, nil
	}

	updates := cmd.parse(string(stdout))

	c.log.InfoContext(ctx, "Updates are checked",
		"command", cmd.name,
		"updateCount", len(updates),
		"durationSeconds", time.Since(start).Seconds())

	if len(updates) == 0 {
		return summarizer.Input{Text: cmd.upToDate}, nil
	}

	return summarizer.Input{Text: cmd.header + "\n" + strings.Join(updates, "\n")}, nil
}

func describeRunError(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "command timed out"
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
			return fmt.Sprintf("%v: %s", err, stderr)
		}
	}

	return err.Error()
}

// aptUpdates drops the "Listing..." header line.
func aptUpdates(stdout string) []string {
	lines := nonEmptyLines(stdout)
	if len(lines) > 0 && strings.HasPrefix(lines[0], "Listing") {
		lines = lines[1:]
	}
	return lines
}

// softwareUpdates keeps the "* Label: ..." lines.
func softwareUpdates(stdout string) []string {
	var updates []string
	for _, line := range nonEmptyLines(stdout) {
		if strings.Contains(line, "*") {
			updates = append(updates, line)
		}
	}
	return updates
}

func nonEmptyLines(stdout string) []string {
	var lines []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
