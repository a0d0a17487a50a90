package bridge

import "log/slog"

type config struct {
	logger   *slog.Logger
	observer Observer
	name     string
}

// Option configures a Session.
type Option func(*config)

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets the observer notified of connection events.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithName labels the session in logs, typically with the worker name.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

func newConfig(opts []Option) config {
	c := config{
		logger:   slog.Default(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.name != "" {
		c.logger = c.logger.With("bridge", c.name)
	}
	return c
}
