package runtime

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"service-nanny/internal/config"
	"service-nanny/internal/logger"
	"service-nanny/internal/utils"
)

// Compose shells out to a compose-compatible CLI using configured argument templates.
type Compose struct {
	cfg    config.RuntimeConfig
	runner CommandRunner
}

/**
 * Create compose runtime
 * @param {config.RuntimeConfig} cfg - Command and argument templates
 * @param {CommandRunner} runner - Process runner, nil means ExecRunner
 * @returns {*Compose} Runtime instance
 */
func NewCompose(cfg config.RuntimeConfig, runner CommandRunner) *Compose {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Compose{cfg: cfg, runner: runner}
}

func (c *Compose) BringUp(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, c.cfg.Up, CommandData{Dir: dir})
	return err
}

func (c *Compose) TearDown(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, c.cfg.Down, CommandData{Dir: dir})
	return err
}

// IsUp reports whether any container of the project in dir is running.
func (c *Compose) IsUp(ctx context.Context, dir string) (bool, error) {
	out, err := c.run(ctx, dir, c.cfg.Ps, CommandData{Dir: dir})
	if err != nil {
		return false, err
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

func (c *Compose) FetchLogs(ctx context.Context, dir string, tail int) ([]string, error) {
	out, err := c.run(ctx, dir, c.cfg.Logs, CommandData{Dir: dir, Tail: tail})
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (c *Compose) run(ctx context.Context, dir string, tmpl []string, data CommandData) ([]byte, error) {
	name, args, err := utils.GetCommandLine(c.cfg.Command, tmpl, data)
	if err != nil {
		return nil, err
	}
	cmdline := strings.Join(append([]string{name}, args...), " ")
	logger.Debugf("runtime: running '%s' in %s", cmdline, dir)

	stdout, stderr, code, err := c.runner.Run(ctx, dir, name, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return stdout, &ExitError{
			Command:  cmdline,
			ExitCode: code,
			Stderr:   strings.TrimSpace(string(stderr)),
			Err:      err,
		}
	}
	return stdout, nil
}
