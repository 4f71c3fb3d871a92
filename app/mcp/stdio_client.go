package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrServerExited is returned for calls pending when the server process exits
var ErrServerExited = errors.New("mcp server process exited")

// StdioClientConfig describes the server process to launch
type StdioClientConfig struct {
	Command string
	Args    []string
	// Env replaces the inherited environment when non-nil
	Env []string
	// Timeout bounds each call; zero means only the context applies
	Timeout time.Duration
}

// StdioClient runs an MCP server as a child process and exchanges
// newline-delimited JSON-RPC messages over its stdin and stdout. Calls may be
// issued concurrently; responses are matched by id. The child is started on
// first use and restarted on the next call after it exits.
type StdioClient struct {
	cfg    StdioClientConfig
	log    *logrus.Logger
	nextID atomic.Int64

	mu     sync.Mutex
	proc   *stdioProcess
	closed bool
}

type stdioProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *Response

	done    chan struct{}
	exitErr error
}

// NewStdioClient creates a client; the process is started lazily
func NewStdioClient(cfg StdioClientConfig, log *logrus.Logger) *StdioClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StdioClient{cfg: cfg, log: log}
}

// CallTool implements Client
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) ToolResponse {
	if args == nil {
		args = map[string]interface{}{}
	}
	resp, err := c.request(ctx, "tools/call", ToolCallParams{Name: name, Arguments: args})
	if err != nil {
		return failure(ErrCodeUnavailable, err)
	}
	return decodeToolCall(resp)
}

// ListTools implements Client
func (c *StdioClient) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := c.request(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	return decodeToolsList(resp)
}

// Close stops the child process
func (c *StdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.proc == nil {
		return nil
	}
	p := c.proc
	c.proc = nil

	// EOF on stdin lets the server finish in-flight work and exit
	p.stdin.Close()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		p.cmd.Process.Kill()
		<-p.done
	}
	return nil
}

// request sends one call, starting the server first when needed
func (c *StdioClient) request(ctx context.Context, method string, params interface{}) (*Response, error) {
	p, err := c.process(ctx)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, p, method, params)
}

// process returns a live child, starting one if none is running
func (c *StdioClient) process(ctx context.Context) (*stdioProcess, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("mcp client closed")
	}

	if c.proc != nil {
		select {
		case <-c.proc.done:
			c.log.WithError(c.proc.exitErr).Warn("MCP server process exited, restarting")
			c.proc = nil
		default:
			return c.proc, nil
		}
	}

	p, err := c.start()
	if err != nil {
		return nil, err
	}

	if err := c.handshake(ctx, p); err != nil {
		p.stdin.Close()
		p.cmd.Process.Kill()
		<-p.done
		return nil, fmt.Errorf("mcp handshake failed: %w", err)
	}

	c.proc = p
	return p, nil
}

func (c *StdioClient) start() (*stdioProcess, error) {
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	if c.cfg.Env != nil {
		cmd.Env = c.cfg.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mcp server %q: %w", c.cfg.Command, err)
	}

	p := &stdioProcess{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[string]chan *Response),
		done:    make(chan struct{}),
	}

	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		c.forwardStderr(stderr)
	}()
	go func() {
		defer streams.Done()
		c.readLoop(p, stdout)
	}()
	go func() {
		// Wait must follow the pipe readers draining
		streams.Wait()
		p.exitErr = cmd.Wait()
		if p.exitErr == nil {
			p.exitErr = ErrServerExited
		}
		close(p.done)
	}()

	c.log.WithField("pid", cmd.Process.Pid).Info("MCP server process started")
	return p, nil
}

func (c *StdioClient) handshake(ctx context.Context, p *stdioProcess) error {
	_, err := c.call(ctx, p, "initialize", map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "smartims-api",
			"version": ServerVersion,
		},
	})
	if err != nil {
		return err
	}
	return p.write(Request{JSONRPC: jsonRPCVersion, Method: "notifications/initialized"})
}

// call writes a request and waits for the matching response, the timeout,
// ctx cancellation or process exit, whichever comes first
func (c *StdioClient) call(ctx context.Context, p *stdioProcess, method string, params interface{}) (*Response, error) {
	id := strconv.FormatInt(c.nextID.Add(1), 10)

	req := Request{JSONRPC: jsonRPCVersion, ID: json.RawMessage(id), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}

	ch := make(chan *Response, 1)
	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	if err := p.write(req); err != nil {
		return nil, err
	}

	var timeout <-chan time.Time
	if c.cfg.Timeout > 0 {
		timer := time.NewTimer(c.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-p.done:
		// the reply may have arrived just before the exit
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		return nil, fmt.Errorf("%s: %w", method, p.exitErr)
	case <-timeout:
		return nil, fmt.Errorf("%s: no response within %s", method, c.cfg.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *stdioProcess) write(req Request) error {
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	line = append(line, '\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.stdin.Write(line); err != nil {
		return fmt.Errorf("failed to write to mcp server: %w", err)
	}
	return nil
}

// readLoop delivers responses to their waiting callers until stdout closes
func (c *StdioClient) readLoop(p *stdioProcess, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)

	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			c.log.WithError(err).Warn("MCP: ignoring malformed server output")
			continue
		}
		if len(resp.ID) == 0 {
			continue
		}

		p.pendingMu.Lock()
		ch, ok := p.pending[string(resp.ID)]
		p.pendingMu.Unlock()
		if !ok {
			c.log.WithField("id", string(resp.ID)).Debug("MCP: response for unknown or expired call")
			continue
		}
		select {
		case ch <- &resp:
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.WithError(err).Warn("MCP: error reading server output")
		// keep the child from blocking on a full pipe
		io.Copy(io.Discard, stdout)
	}
}

func (c *StdioClient) forwardStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.log.WithField("source", "mcp-server").Debug(scanner.Text())
	}
}
