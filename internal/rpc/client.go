// SPDX-License-Identifier: MIT

package rpc

import (
	"context"
	"fmt"
	"net"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
)

// MethodInfo describes one remote method as reported by get_rpc_method_list.
type MethodInfo struct {
	Args     []string
	Defaults []any
	Doc      string
}

// MethodList is the decoded get_rpc_method_list reply.
type MethodList struct {
	Docstring string
	Methods   map[string]MethodInfo
}

// Client is a pc_rpc client bound to one connection. Calls are serialized.
// A call that fails mid-exchange, including on ctx expiry, closes the
// connection: a late reply would otherwise be read as the next call's result.
type Client struct {
	mu          sync.Mutex
	closed      atomic.Bool
	conn        net.Conn
	lc          *lineConn
	targets     []string
	description string
	selected    string
	methods     []string
}

// Dial connects to addr and reads the server banner. A target must be
// selected before calling methods.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, lc: newLineConn(conn, DefaultMaxLineSize)}

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	defer c.watch(ctx)()

	if err := c.lc.writeLine(initLine); err != nil {
		return fmt.Errorf("rpc: send handshake: %w", err)
	}
	v, err := c.lc.readValue()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadHandshake, err)
	}
	banner, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: banner is %s", ErrBadHandshake, pyTypeName(v))
	}
	targets, err := toStrings(banner["targets"])
	if err != nil {
		return fmt.Errorf("%w: targets: %w", ErrBadHandshake, err)
	}
	sort.Strings(targets)
	c.targets = targets
	c.description, _ = banner["description"].(string)
	return nil
}

// watch applies the ctx deadline to the connection and aborts blocked I/O
// on cancellation. The returned func restores the connection.
func (c *Client) watch(ctx context.Context) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		_ = c.conn.SetDeadline(time.Time{})
	}
}

// Targets returns the target names announced by the server.
func (c *Client) Targets() []string {
	return append([]string(nil), c.targets...)
}

// Description returns the server description, empty when none was set.
func (c *Client) Description() string { return c.description }

// SelectedTarget returns the selected target name.
func (c *Client) SelectedTarget() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Methods returns the method names announced for the selected target.
func (c *Client) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.methods...)
}

// SelectTarget binds the connection to a target. The server closes the
// connection on unknown names, so the name is checked against the banner.
func (c *Client) SelectTarget(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.selected != "" {
		return fmt.Errorf("rpc: target %q already selected", c.selected)
	}
	if !slices.Contains(c.targets, name) {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}

	defer c.watch(ctx)()
	if err := c.lc.writeLine(name); err != nil {
		return c.abort(ctx, "select target", err)
	}
	v, err := c.lc.readValue()
	if err != nil {
		return c.abort(ctx, "select target", err)
	}
	methods, err := toStrings(v)
	if err != nil {
		return fmt.Errorf("%w: method set: %w", ErrMalformedReply, err)
	}
	sort.Strings(methods)
	c.selected = name
	c.methods = methods
	return nil
}

// AutoTarget selects the only target exposed by the server.
func (c *Client) AutoTarget(ctx context.Context) (string, error) {
	if len(c.targets) != 1 {
		return "", fmt.Errorf("%w: %v", ErrAmbiguousTarget, c.targets)
	}
	name := c.targets[0]
	return name, c.SelectTarget(ctx, name)
}

// Call invokes a method on the selected target. Remote failures are
// returned as *RemoteError.
func (c *Client) Call(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return c.request(ctx, map[string]any{
		"action": "call",
		"name":   name,
		"args":   pyon.Tuple(args),
		"kwargs": kwargs,
	})
}

// MethodList fetches the method signatures of the selected target.
func (c *Client) MethodList(ctx context.Context) (*MethodList, error) {
	ret, err := c.request(ctx, map[string]any{"action": "get_rpc_method_list"})
	if err != nil {
		return nil, err
	}
	obj, ok := ret.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: method list is %s", ErrMalformedReply, pyTypeName(ret))
	}
	out := &MethodList{Methods: map[string]MethodInfo{}}
	out.Docstring, _ = obj["docstring"].(string)
	methods, _ := obj["methods"].(map[string]any)
	for name, raw := range methods {
		info, err := parseMethodInfo(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: method %s: %w", ErrMalformedReply, name, err)
		}
		out.Methods[name] = info
	}
	return out, nil
}

// Terminate asks the server process to exit.
func (c *Client) Terminate(ctx context.Context) error {
	_, err := c.Call(ctx, "terminate", nil, nil)
	return err
}

// Close closes the connection. Calls made afterwards return ErrClientClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// abort drops a connection whose request/reply pairing can no longer be
// trusted and reports ctx expiry in preference to the I/O error it caused.
func (c *Client) abort(ctx context.Context, op string, err error) error {
	if !c.closed.Swap(true) {
		_ = c.conn.Close()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("rpc: %s: %w", op, err)
}

func (c *Client) request(ctx context.Context, req map[string]any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.selected == "" {
		return nil, ErrNoTarget
	}
	defer c.watch(ctx)()

	if err := c.lc.writeValue(req); err != nil {
		return nil, c.abort(ctx, "send request", err)
	}
	v, err := c.lc.readValue()
	if err != nil {
		return nil, c.abort(ctx, "read reply", err)
	}
	return parseReply(v)
}

func parseReply(v any) (any, error) {
	reply, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: reply is %s", ErrMalformedReply, pyTypeName(v))
	}
	switch reply["status"] {
	case "ok":
		return reply["ret"], nil
	case "failed":
		exc, _ := reply["exception"].(map[string]any)
		re := &RemoteError{Class: "Exception"}
		if cls, ok := exc["class"].(string); ok && cls != "" {
			re.Class = cls
		}
		re.Message, _ = exc["message"].(string)
		re.Traceback, _ = toStrings(exc["traceback"])
		return nil, re
	default:
		return nil, fmt.Errorf("%w: unknown status %v", ErrMalformedReply, reply["status"])
	}
}

func parseMethodInfo(raw any) (MethodInfo, error) {
	pair, ok := raw.(pyon.Tuple)
	if !ok {
		if l, isList := raw.([]any); isList {
			pair, ok = pyon.Tuple(l), true
		}
	}
	if !ok || len(pair) != 2 {
		return MethodInfo{}, fmt.Errorf("expected (argspec, doc), got %s", pyTypeName(raw))
	}
	argspec, ok := pair[0].(map[string]any)
	if !ok {
		return MethodInfo{}, fmt.Errorf("argspec is %s", pyTypeName(pair[0]))
	}
	args, err := toStrings(argspec["args"])
	if err != nil {
		return MethodInfo{}, err
	}
	if len(args) > 0 && args[0] == "self" {
		args = args[1:]
	}
	info := MethodInfo{Args: args}
	switch d := argspec["defaults"].(type) {
	case pyon.Tuple:
		info.Defaults = d
	case []any:
		info.Defaults = d
	}
	info.Doc, _ = pair[1].(string)
	return info, nil
}

func toStrings(v any) ([]string, error) {
	var items []any
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		items = x
	case pyon.Tuple:
		items = x
	case pyon.Set:
		items = x
	default:
		return nil, fmt.Errorf("expected a sequence of strings, got %s", pyTypeName(v))
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("expected str, got %s", pyTypeName(it))
		}
		out = append(out, s)
	}
	return out, nil
}
