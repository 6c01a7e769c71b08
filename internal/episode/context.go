package episode

import (
	"log/slog"
	"sync"

	"github.com/drlrcc/torcs-driver/pkg/core"
)

// Context holds the episode currently being driven and its step counter.
// The driving loop writes it; log handlers and sinks read it.
type Context struct {
	mu      sync.RWMutex
	episode *core.Episode
	step    int
}

// NewContext creates a new Context with no episode loaded
func NewContext() *Context {
	return &Context{}
}

// Get returns the current episode, or nil between episodes
func (c *Context) Get() *core.Episode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.episode
}

// Set sets the current episode and resets the step counter
func (c *Context) Set(ep *core.Episode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.episode = ep
	c.step = 0
}

// Clear forgets the current episode
func (c *Context) Clear() {
	c.Set(nil)
}

// SetStep records the step the loop is on
func (c *Context) SetStep(step int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
}

// Step returns the last recorded step
func (c *Context) Step() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

// LogAttrs reports the episode id, number and step for log records.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.episode == nil {
		return nil
	}
	return []slog.Attr{
		slog.String("episodeId", c.episode.ID),
		slog.Int("episode", c.episode.Number),
		slog.Int("step", c.step),
	}
}
