package pluginloader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relayd/relayd/pkg/relayplugin"
)

// maxLineSize bounds a single newline-delimited JSON message read from a
// plugin's stdout. A plugin emitting a longer line is misbehaving.
const maxLineSize = 1 << 20 // 1 MiB

// RPCClient speaks relayd's JSON-RPC protocol to a single subprocess
// plugin over its stdin/stdout. One RPCClient is created per configured
// plugin instance and lives for that instance's lifetime.
type RPCClient struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[string]chan relayplugin.RPCResponse
	fatal   error

	events chan relayplugin.RPCEvent
	done   chan struct{}
}

// NewRPCClient builds a client that will run executable with args when
// Start is called. env, if non-nil, replaces the subprocess's environment
// entirely (already resolved "KEY=VALUE" pairs); a nil env inherits the
// relayd process's own environment.
func NewRPCClient(executable string, args []string, env []string) *RPCClient {
	cmd := exec.Command(executable, args...)
	cmd.Env = env
	return &RPCClient{
		cmd:     cmd,
		pending: make(map[string]chan relayplugin.RPCResponse),
		events:  make(chan relayplugin.RPCEvent, 64),
		done:    make(chan struct{}),
	}
}

// Start launches the subprocess and begins reading its stdout.
func (c *RPCClient) Start(ctx context.Context) error {
	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	c.stdin = stdin

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start subprocess: %w", err)
	}

	go c.readLoop(stdout)
	go c.monitor()
	return nil
}

// Stop closes stdin (prompting a well-behaved plugin to exit) and waits up
// to 5 seconds before killing the process.
func (c *RPCClient) Stop() {
	_ = c.stdin.Close()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		_ = c.cmd.Process.Kill()
		<-c.done
	}
}

// Events returns the channel of unsolicited events the plugin pushes,
// used by push-capable source plugins that stream rather than poll.
func (c *RPCClient) Events() <-chan relayplugin.RPCEvent { return c.events }

// Call sends method with params and waits for the matching response,
// honoring ctx's deadline.
func (c *RPCClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return nil, err
	}
	id := fmt.Sprintf("%d", c.nextID.Add(1))
	respCh := make(chan relayplugin.RPCResponse, 1)
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	req := relayplugin.RPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("plugin error (%d): %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("plugin process exited before responding")
	}
}

func (c *RPCClient) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		var probe struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(line, &probe); err == nil && probe.Event == "event" {
			var ev relayplugin.RPCEvent
			if err := json.Unmarshal(line, &ev); err == nil {
				select {
				case c.events <- ev:
				default:
				}
			}
			continue
		}

		var resp relayplugin.RPCResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		id, _ := resp.ID.(string)
		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *RPCClient) monitor() {
	_ = c.cmd.Wait()
	c.mu.Lock()
	c.fatal = fmt.Errorf("plugin process exited")
	c.mu.Unlock()
	close(c.done)
}
