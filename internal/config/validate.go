package config

import (
	"errors"
	"fmt"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Render.MaxRetries < 0 {
		return fmt.Errorf("render.max_retries must be >= 0, got %d", c.Render.MaxRetries)
	}
	if c.Render.TimeoutSeconds <= 0 {
		return fmt.Errorf("render.timeout_seconds must be positive, got %d", c.Render.TimeoutSeconds)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm.timeout_seconds must be positive, got %d", c.LLM.TimeoutSeconds)
	}
	if c.LLM.HTTPTimeoutMS <= 0 {
		return fmt.Errorf("llm.http_timeout_ms must be positive, got %d", c.LLM.HTTPTimeoutMS)
	}
	if c.Server.HeartbeatSeconds <= 0 {
		return fmt.Errorf("server.heartbeat_seconds must be positive, got %d", c.Server.HeartbeatSeconds)
	}
	if c.Server.SubscriberWaitMS < 0 {
		return fmt.Errorf("server.subscriber_wait_ms must be >= 0, got %d", c.Server.SubscriberWaitMS)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
