package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Context holds the current race session
type Context struct {
	mu      sync.RWMutex
	player  string
	current core.Session
	active  bool
	count   int
}

// NewContext creates a Context for the given player name
func NewContext(player string) *Context {
	if player == "" {
		player = "anonymous"
	}
	return &Context{player: player}
}

// Begin opens a new session with a fresh id and makes it current
func (c *Context) Begin(track string, hash uint64, now time.Time) core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = core.Session{
		ID:        uuid.NewString(),
		Player:    c.player,
		Track:     track,
		TrackHash: hash,
		StartedAt: now,
	}
	c.active = true
	c.count++
	return c.current
}

// Current returns the active session
func (c *Context) Current() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.active
}

// End clears the active session and returns it
func (c *Context) End() (core.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.current, c.active
	c.active = false
	return s, ok
}

// Player returns the name new sessions are opened under
func (c *Context) Player() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player
}

// SetPlayer changes the player for sessions opened after the call
func (c *Context) SetPlayer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name != "" {
		c.player = name
	}
}

// Count returns how many sessions were opened
func (c *Context) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}
