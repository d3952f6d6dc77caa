// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package plugin

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MePride/pin/internal/ferr"
	"github.com/MePride/pin/internal/store"
	"github.com/MePride/pin/panel"
)

// DisplaySignal is the advisory state a plugin's Display API calls
// leave behind for the canvas engine to pick up when it next renders
// that plugin's widget region. The runtime never interprets these
// itself; it is a mailbox, not a renderer.
type DisplaySignal struct {
	Text     string
	Color    panel.Color
	FontSize int
}

// EventBus is a minimal in-process publish/subscribe bus shared by every
// plugin's Context, so one plugin's emit reaches every other plugin's
// subscribe without the runtime wiring point-to-point channels.
type EventBus struct {
	mu   sync.Mutex
	subs map[string][]func(payload any)
}

func newEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]func(payload any))}
}

func (b *EventBus) subscribe(name string, cb func(payload any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], cb)
}

func (b *EventBus) emit(name string, payload any) {
	b.mu.Lock()
	cbs := append([]func(payload any){}, b.subs[name]...)
	b.mu.Unlock()
	for _, cb := range cbs {
		cb(payload)
	}
}

// Context is the capability-restricted handle a plugin's callbacks
// receive. It is always passed explicitly by the runtime — nothing here
// is looked up through implicit thread-local state, a deliberate
// departure from the host API's original TLS-keyed context lookup.
type Context struct {
	name        string
	token       uuid.UUID
	region      WidgetRegion
	memoryLimit int
	kv          store.KV
	allow       []string
	bus         *EventBus
	client      *http.Client

	valid   atomic.Bool
	mu      sync.Mutex
	stats   *Stats
	limiter *rate.Limiter
	signal  DisplaySignal
	logf    func(level, tag, format string, args ...any)

	scheduleCh chan time.Duration
}

func newContext(name string, cfg Config, region WidgetRegion, kv store.KV, allow []string, bus *EventBus, stats *Stats, logf func(level, tag, format string, args ...any)) *Context {
	c := &Context{
		name:        name,
		token:       uuid.New(),
		region:      region,
		memoryLimit: cfg.MemoryLimit,
		kv:          kv,
		allow:       allow,
		bus:         bus,
		client:      &http.Client{Timeout: 10 * time.Second},
		stats:       stats,
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.APIRateLimit)/60.0), cfg.APIRateLimit),
		logf:        logf,
		scheduleCh:  make(chan time.Duration, 1),
	}
	c.valid.Store(true)
	return c
}

// Token identifies this registration instance. Unregistering a plugin
// invalidates its Context without reusing the token, so a goroutine
// still holding a reference to a torn-down plugin's Context from before
// it was unregistered gets InvalidState from every host-API call
// instead of silently operating on a live plugin slot reused under the
// same name.
func (c *Context) Token() uuid.UUID { return c.token }

// invalidate marks the Context as belonging to a removed plugin.
func (c *Context) invalidate() { c.valid.Store(false) }

// Region returns the widget rectangle this plugin was allocated.
func (c *Context) Region() WidgetRegion { return c.region }

// enter is called at the top of every host-API method: it accounts the
// call against the per-minute budget and reports whether the call may
// proceed. Unlike the window-reset logic this replaces, the limiter
// itself owns elapsed-time tracking, so there is no separate window
// start to forget to compare against.
func (c *Context) enter() error {
	if !c.valid.Load() {
		return ferr.New(ferr.InvalidState, "plugin %q's context was invalidated by unregister", c.name)
	}

	c.mu.Lock()
	c.stats.APICallsCount++
	if c.stats.APICallsWindowStart.IsZero() {
		c.stats.APICallsWindowStart = time.Now()
	}
	c.mu.Unlock()

	if !c.limiter.Allow() {
		return ferr.New(ferr.RateLimited, "plugin %q exceeded its API rate limit", c.name)
	}
	return nil
}

// Log writes a tagged message to the system log at the given level
// ("debug", "info", "warn", "error").
func (c *Context) Log(level, tag, format string, args ...any) {
	c.logf(level, tag, format, args...)
}

// domainAllowed reports whether host matches an allow-listed domain or
// one of its subdomains.
func domainAllowed(host string, allow []string) bool {
	for _, d := range allow {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// HTTPGet issues a GET to rawURL, whose host must be on the plugin's
// compiled-in allow-list.
func (c *Context) HTTPGet(rawURL string) ([]byte, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ferr.Wrap(ferr.InvalidArgument, err, "parsing url")
	}
	if !domainAllowed(u.Hostname(), c.allow) {
		return nil, ferr.New(ferr.NotAllowed, "domain %q not allow-listed", u.Hostname())
	}
	resp, err := c.client.Get(rawURL)
	if err != nil {
		return nil, ferr.Wrap(ferr.Timeout, err, "GET %s", rawURL)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// HTTPPost issues a POST of body to rawURL, under the same allow-list
// restriction as HTTPGet.
func (c *Context) HTTPPost(rawURL string, body []byte) ([]byte, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ferr.Wrap(ferr.InvalidArgument, err, "parsing url")
	}
	if !domainAllowed(u.Hostname(), c.allow) {
		return nil, ferr.New(ferr.NotAllowed, "domain %q not allow-listed", u.Hostname())
	}
	resp, err := c.client.Post(rawURL, "application/octet-stream", strings.NewReader(string(body)))
	if err != nil {
		return nil, ferr.Wrap(ferr.Timeout, err, "POST %s", rawURL)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Context) namespacedKey(key string) string {
	return "plugin_" + c.name + "_" + key
}

// ConfigGet reads a plugin-namespaced persisted setting.
func (c *Context) ConfigGet(key string) (string, error) {
	if err := c.enter(); err != nil {
		return "", err
	}
	blob, err := c.kv.GetBlob(store.NamespacePlugins, c.namespacedKey(key))
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// ConfigSet persists a plugin-namespaced setting.
func (c *Context) ConfigSet(key, value string) error {
	if err := c.enter(); err != nil {
		return err
	}
	if err := c.kv.SetBlob(store.NamespacePlugins, c.namespacedKey(key), []byte(value)); err != nil {
		return err
	}
	return c.kv.Commit(store.NamespacePlugins)
}

// ConfigDelete removes a plugin-namespaced setting.
func (c *Context) ConfigDelete(key string) error {
	if err := c.enter(); err != nil {
		return err
	}
	if err := c.kv.Erase(store.NamespacePlugins, c.namespacedKey(key)); err != nil {
		return err
	}
	return c.kv.Commit(store.NamespacePlugins)
}

// TimestampMS returns the current wall-clock time in milliseconds.
func (c *Context) TimestampMS() int64 {
	return time.Now().UnixMilli()
}

// FormatTime renders the current local time with the given layout (Go
// reference-time format, e.g. "2006-01-02 15:04:05").
func (c *Context) FormatTime(layout string) string {
	return time.Now().Format(layout)
}

// UpdateContent sets the text the plugin's widget should display next
// render; advisory only, consumed by the canvas engine's plugin binding.
func (c *Context) UpdateContent(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signal.Text = text
}

// SetColor sets the color the plugin's widget should draw in.
func (c *Context) SetColor(col panel.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signal.Color = col
}

// SetFontSize sets the font size the plugin's widget should draw at.
func (c *Context) SetFontSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signal.FontSize = n
}

// Signal returns a copy of the plugin's current advisory display state.
func (c *Context) Signal() DisplaySignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

// ScheduleUpdate requests an out-of-band Update tick after delay.
func (c *Context) ScheduleUpdate(delay time.Duration) {
	select {
	case c.scheduleCh <- delay:
	default:
	}
}

// CancelScheduledUpdate drops any pending out-of-band tick request.
func (c *Context) CancelScheduledUpdate() {
	select {
	case <-c.scheduleCh:
	default:
	}
}

// Emit publishes an event to every subscriber of name, in-process.
func (c *Context) Emit(name string, payload any) {
	c.bus.emit(name, payload)
}

// Subscribe registers cb to run whenever any plugin emits name.
func (c *Context) Subscribe(name string, cb func(payload any)) {
	c.bus.subscribe(name, cb)
}

// Alloc reserves size bytes against the plugin's memory quota, reporting
// OutOfMemory without mutating stats if the reservation would exceed
// config.MemoryLimit.
func (c *Context) Alloc(size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats.MemoryUsed+size > c.memoryLimit {
		return ferr.New(ferr.OutOfMemory, "plugin %q: %d+%d exceeds limit %d", c.name, c.stats.MemoryUsed, size, c.memoryLimit)
	}
	c.stats.MemoryUsed += size
	if c.stats.MemoryUsed > c.stats.MemoryPeak {
		c.stats.MemoryPeak = c.stats.MemoryUsed
	}
	return nil
}

// Free releases size bytes previously reserved by Alloc.
func (c *Context) Free(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.MemoryUsed -= size
	if c.stats.MemoryUsed < 0 {
		c.stats.MemoryUsed = 0
	}
}
