package config

import (
	"github.com/duke-git/lancet/v2/strutil"

	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/messages"
	"github.com/smnsjas/go-srsclient/poll"
	"github.com/smnsjas/go-srsclient/runspace"
)

// Validate reports the first invalid setting as a CONFIG_INVALID error.
// The server address is not checked here because the CLI takes it as an
// argument.
func (c *Config) Validate() error {
	if c.Server.RequestTimeout < 0 {
		return srserrors.ConfigInvalid("server.request_timeout", "must not be negative")
	}
	if strutil.IsBlank(c.Runspace.Name) {
		return srserrors.ConfigInvalid("runspace.name", "must not be empty")
	}
	if c.Runspace.Timeout <= 0 {
		return srserrors.ConfigInvalid("runspace.timeout", "must be positive")
	}
	if c.Runspace.CloseTimeout <= 0 {
		return srserrors.ConfigInvalid("runspace.close_timeout", "must be positive")
	}
	if c.Script.JobTimeout <= 0 {
		return srserrors.ConfigInvalid("script.job_timeout", "must be positive")
	}
	if _, err := messages.ParseOutputObjectsFormat(c.Script.OutputFormat); err != nil {
		return srserrors.ConfigInvalid("script.output_format", err.Error())
	}
	if _, err := c.StreamTypes(); err != nil {
		return err
	}
	if c.Poll.Interval <= 0 {
		return srserrors.ConfigInvalid("poll.interval", "must be positive")
	}
	if c.Poll.MaxAttempts < 0 {
		return srserrors.ConfigInvalid("poll.max_attempts", "must not be negative")
	}
	return c.Logging.Validate()
}

// StreamTypes parses the configured stream names.
func (c *Config) StreamTypes() ([]messages.StreamType, error) {
	out := make([]messages.StreamType, 0, len(c.Script.Streams))
	for _, s := range c.Script.Streams {
		st, err := messages.ParseStreamType(s)
		if err != nil {
			return nil, srserrors.ConfigInvalid("script.streams", err.Error())
		}
		out = append(out, st)
	}
	return out, nil
}

// OutputFormat parses the configured output format.
func (c *Config) OutputFormat() messages.OutputObjectsFormat {
	f, _ := messages.ParseOutputObjectsFormat(c.Script.OutputFormat)
	return f
}

// SessionConfig derives the runspace session settings.
func (c *Config) SessionConfig() runspace.SessionConfig {
	return runspace.SessionConfig{
		Name:                  c.Runspace.Name,
		RunVCConnectionScript: c.Runspace.RunVCConnectionScript,
		Poll: poll.Policy{
			Interval:    c.Poll.Interval,
			MaxWait:     c.Runspace.Timeout,
			MaxAttempts: c.Poll.MaxAttempts,
		},
		CloseTimeout: c.Runspace.CloseTimeout,
	}
}

// JobPolicy derives the poll policy used while waiting for a script.
func (c *Config) JobPolicy() poll.Policy {
	return poll.Policy{
		Interval:    c.Poll.Interval,
		MaxWait:     c.Script.JobTimeout,
		MaxAttempts: c.Poll.MaxAttempts,
	}
}
