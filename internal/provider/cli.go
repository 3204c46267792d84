package provider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/errors"
	"github.com/felixgeelhaar/maestro/internal/log"
)

// CLIClient invokes a reasoning CLI executable as a subprocess, prompt on
// stdin, response on stdout.
type CLIClient struct {
	path         string
	args         []string
	defaultModel string
	workDir      string
	logger       *log.Logger
}

// NewCLIClient creates a client for the configured provider executable.
func NewCLIClient(cfg config.ProviderConfig, logger *log.Logger) *CLIClient {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &CLIClient{
		path:         cfg.Path,
		args:         cfg.Args,
		defaultModel: cfg.Model,
		logger:       logger,
	}
}

// WithWorkDir returns a copy of the client that runs the provider in dir.
func (c *CLIClient) WithWorkDir(dir string) *CLIClient {
	clone := *c
	clone.workDir = dir
	return &clone
}

// IsAvailable reports whether the executable resolves via PATH.
func (c *CLIClient) IsAvailable() bool {
	_, err := exec.LookPath(c.path)
	return err == nil
}

// Generate runs the provider once. Every spawned child carries the child
// marker so a hook-managed environment re-invoking this engine is detected
// and passed through instead of recursing.
func (c *CLIClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if _, err := exec.LookPath(c.path); err != nil {
		return nil, errors.NewProviderNotFoundError(c.path)
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	args := append(append([]string{}, c.args...), "--model", model)
	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.Env = append(os.Environ(), ChildMarkerEnv+"="+ChildMarkerValue)
	if c.workDir != "" {
		cmd.Dir = c.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	latency := time.Since(started)

	if ctx.Err() != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderTimeout,
			fmt.Sprintf("provider call exceeded its budget after %s", latency.Round(time.Millisecond)), ctx.Err())
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return nil, errors.Wrap(errors.ErrCodeProviderFailed,
			fmt.Sprintf("provider failed: %s", detail), err)
	}

	c.logger.Debug("provider call completed", "model", model, "latency", latency.Round(time.Millisecond))
	return &GenerateResponse{
		Text:    strings.TrimSpace(stdout.String()),
		Latency: latency,
	}, nil
}
