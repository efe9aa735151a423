// Package notify provides a built-in deferred-capable loader that announces
// build completion over a socket.io connection, dev-server style: when the
// emit phase runs, connected tooling learns the build id and the emitted
// asset names.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/ctxlog"
	"github.com/vk/deferloader/internal/loader"
)

// Module implements the loader.Provider interface for this package.
type Module struct{}

// Options configures the notification target.
type Options struct {
	URL                string
	Namespace          string
	Event              string
	TimeoutSeconds     float64
	InsecureSkipVerify bool
}

// decodeOptions validates the generic options value from the coordinator.
func decodeOptions(v any) (Options, error) {
	o := Options{
		Event:          "build_done",
		TimeoutSeconds: 15,
	}

	opts, ok := v.(map[string]any)
	if !ok {
		return o, fmt.Errorf("notify loader requires an options object with a 'url'")
	}
	if u, ok := opts["url"].(string); ok {
		o.URL = u
	}
	if o.URL == "" {
		return o, fmt.Errorf("notify loader requires a non-empty 'url' option")
	}
	if ns, ok := opts["namespace"].(string); ok {
		o.Namespace = ns
	}
	if ev, ok := opts["event"].(string); ok && ev != "" {
		o.Event = ev
	}
	if timeout, ok := opts["timeout_seconds"].(float64); ok && timeout > 0 {
		o.TimeoutSeconds = timeout
	}
	if insecure, ok := opts["insecure_skip_verify"].(bool); ok {
		o.InsecureSkipVerify = insecure
	}
	return o, nil
}

// Configure validates options eagerly so misconfiguration surfaces at
// registration time instead of at the end of the build.
func Configure(options any) {
	if _, err := decodeOptions(options); err != nil {
		slog.Warn("Invalid notify loader options; emit will fail.", "error", err)
	}
}

// Deferred connects to the configured socket.io endpoint, emits the
// completion event, and disconnects.
func Deferred(ctx context.Context, c *build.Compilation, options any) error {
	logger := ctxlog.FromContext(ctx).With("loader", "notify")

	o, err := decodeOptions(options)
	if err != nil {
		return err
	}

	parsedURL, err := url.Parse(o.URL)
	if err != nil {
		return fmt.Errorf("failed to parse notify URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected to notify endpoint.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errs[0].(error)
		connectChan <- err
	})

	io.Connect()

	timeout := time.Duration(o.TimeoutSeconds * float64(time.Second))
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return fmt.Errorf("notify connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return fmt.Errorf("context cancelled while connecting to notify endpoint")
	case <-time.After(timeout):
		io.Disconnect()
		return fmt.Errorf("timed out after %s waiting for notify connection", timeout)
	}

	defer io.Disconnect()

	if err := io.Emit(o.Event, map[string]any{
		"build_id": c.ID.String(),
		"assets":   c.AssetNames(),
	}); err != nil {
		return fmt.Errorf("emitting notify event %q: %w", o.Event, err)
	}

	logger.Info("Announced build completion.", "event", o.Event, "url", o.URL)
	return nil
}

// Register registers the notify loader with the static host.
func (m *Module) Register(h *loader.StaticHost) {
	h.Register("notify", &loader.Module{
		Deferred:  Deferred,
		Configure: Configure,
	})
}
