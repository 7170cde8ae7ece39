package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration for values that would prevent the daemon
// from operating. API keys are deliberately not required here: the daemon can
// serve CRUD and progress endpoints without them, and the pipeline surfaces
// collaborator failures per run.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		problems = append(problems, "paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		problems = append(problems, "paths.storage_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		problems = append(problems, "paths.scratch_dir must be set")
	}
	if bind := strings.TrimSpace(c.Paths.APIBind); bind != "" {
		if _, _, err := net.SplitHostPort(bind); err != nil {
			problems = append(problems, fmt.Sprintf("paths.api_bind %q is not host:port", bind))
		}
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of text, json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if c.Transcriber.BaseURL == "" {
		problems = append(problems, "transcriber.base_url must be set")
	}
	if c.LLM.BaseURL == "" {
		problems = append(problems, "llm.base_url must be set")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
