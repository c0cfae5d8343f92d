// Package host starts and talks to a verification worker process. Requests go out
// over one shared-memory channel and responses come back over another.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lhaig/boundcheck/internal/channel"
	"github.com/lhaig/boundcheck/internal/manager"
	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/protocol"
	"github.com/lhaig/boundcheck/internal/verify"
)

var (
	// ErrWorkerNotStarted is returned when the worker never opened its channel
	ErrWorkerNotStarted = errors.New("worker did not start")
	// ErrWorkerExited is returned when the worker process is gone
	ErrWorkerExited = errors.New("worker exited")
	// ErrNotRunning is returned before Start and after Close
	ErrNotRunning = errors.New("client not running")
)

// Options configure a Client
type Options struct {
	// WorkerPath is the worker executable
	WorkerPath string
	// WorkerArgs are passed before the channel arguments
	WorkerArgs []string
	// Dir holds the channel files and is the worker's working directory
	Dir string
	// Capacity is the data size of each channel
	Capacity int

	StartTimeout  time.Duration
	PollInterval  time.Duration
	IdleTimeout   time.Duration
	ShutdownGrace time.Duration

	Logger *zap.Logger
}

func (o *Options) defaults() {
	if o.Capacity <= 0 {
		o.Capacity = 1 << 20
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * time.Minute
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type inFlight struct {
	class       string
	fingerprint string
	started     time.Time
	response    *protocol.Response
}

// Client owns one worker process
type Client struct {
	opts   Options
	logger *zap.Logger

	mu           sync.Mutex
	toWorker     *channel.Channel
	fromWorker   *channel.Channel
	requestPath  string
	responsePath string
	cmd          *exec.Cmd
	exited       chan struct{}
	exitErr      error
	inFlight     map[uuid.UUID]*inFlight
	partial      []byte
}

// NewClient returns a client that has not started its worker yet
func NewClient(opts Options) *Client {
	opts.defaults()
	return &Client{opts: opts, logger: opts.Logger, inFlight: make(map[uuid.UUID]*inFlight)}
}

// WorkerArgs returns the arguments that tell a worker where its channels are
func WorkerArgs(requestPath, responsePath string, capacity int) []string {
	return []string{"--requests", requestPath, "--responses", responsePath, "--capacity", fmt.Sprint(capacity)}
}

// Start creates the request channel, launches the worker and waits for it to create
// the response channel
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return errors.New("worker already started")
	}

	dir := c.opts.Dir
	if dir == "" {
		d, err := os.MkdirTemp("", "boundcheck-")
		if err != nil {
			return fmt.Errorf("creating channel directory: %w", err)
		}
		dir = d
		c.opts.Dir = d
	}
	session := uuid.NewString()
	c.requestPath = filepath.Join(dir, session+".requests")
	c.responsePath = filepath.Join(dir, session+".responses")

	to, err := channel.Open(c.requestPath, c.opts.Capacity, true)
	if err != nil {
		return err
	}
	c.toWorker = to

	args := append(append([]string(nil), c.opts.WorkerArgs...), WorkerArgs(c.requestPath, c.responsePath, c.opts.Capacity)...)
	cmd := exec.Command(c.opts.WorkerPath, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		c.cleanup()
		return fmt.Errorf("starting worker: %w", err)
	}
	c.cmd = cmd
	c.exited = make(chan struct{})
	exited := c.exited
	go func() {
		// exitErr is read only after exited is closed
		c.exitErr = cmd.Wait()
		close(exited)
	}()
	c.logger.Info("worker started", zap.Int("pid", cmd.Process.Pid), zap.String("dir", dir))

	from, err := c.openResponses(ctx)
	if err != nil {
		_ = cmd.Process.Kill()
		<-c.exited
		c.cleanup()
		c.cmd = nil
		return err
	}
	c.fromWorker = from
	return nil
}

// openResponses retries until the worker has created its channel
func (c *Client) openResponses(ctx context.Context) (*channel.Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.StartTimeout)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(c.opts.PollInterval), 1)

	var lastErr error
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v (last error: %v)", ErrWorkerNotStarted, err, lastErr)
		}
		select {
		case <-c.exited:
			return nil, fmt.Errorf("%w: process exited during start", ErrWorkerNotStarted)
		default:
		}
		ch, err := channel.Open(c.responsePath, c.opts.Capacity, false)
		if err == nil {
			return ch, nil
		}
		lastErr = err
	}
}

// Submit sends class to the worker and returns the request ID. A full request channel
// is retried until IdleTimeout.
func (c *Client) Submit(ctx context.Context, class *model.ClassModel, fingerprint string) (uuid.UUID, error) {
	req, err := protocol.NewVerifyRequest(class, fingerprint)
	if err != nil {
		return uuid.Nil, err
	}
	frame, err := protocol.Encode(req)
	if err != nil {
		return uuid.Nil, err
	}
	if len(frame) > c.opts.Capacity-1 {
		return uuid.Nil, fmt.Errorf("%s: request of %d bytes exceeds channel capacity", class.Name, len(frame))
	}

	// registered first so a fast response always finds its request
	c.mu.Lock()
	c.inFlight[req.ID] = &inFlight{class: class.Name, fingerprint: fingerprint, started: time.Now()}
	c.mu.Unlock()

	if err := c.send(ctx, frame); err != nil {
		c.mu.Lock()
		delete(c.inFlight, req.ID)
		c.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%s: %w", class.Name, err)
	}
	c.logger.Debug("submitted", zap.String("class", class.Name), zap.Stringer("id", req.ID))
	return req.ID, nil
}

// send writes frame, draining responses while the channel is full
func (c *Client) send(ctx context.Context, frame []byte) error {
	deadline := time.Now().Add(c.opts.IdleTimeout)
	for {
		err := c.write(frame)
		if err == nil || !errors.Is(err, channel.ErrInsufficientSpace) {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		c.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.PollInterval):
		}
	}
}

func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.toWorker == nil {
		return ErrNotRunning
	}
	if c.exited != nil {
		select {
		case <-c.exited:
			return fmt.Errorf("%w: %v", ErrWorkerExited, c.exitErr)
		default:
		}
	}
	return c.toWorker.Write(frame)
}

// Drain reads every available response and attaches it to its request. It returns
// the responses read.
func (c *Client) Drain() []*protocol.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fromWorker == nil {
		return nil
	}
	data := c.fromWorker.Read()
	if data == nil {
		return nil
	}
	c.partial = append(c.partial, data...)
	resps, err := protocol.DecodeResponses(c.partial)
	if err != nil && !errors.Is(err, channel.ErrTruncatedFrame) {
		c.logger.Error("discarding unreadable responses", zap.Error(err))
		c.partial = nil
	} else {
		c.partial = rest(c.partial, len(resps))
	}

	for _, r := range resps {
		p, ok := c.inFlight[r.RequestID]
		if !ok {
			c.logger.Warn("response for unknown request", zap.Stringer("id", r.RequestID), zap.String("class", r.ClassName))
			continue
		}
		p.response = r
		c.logger.Debug("response",
			zap.String("class", r.ClassName),
			zap.String("error_type", string(r.ErrorType)),
			zap.Duration("elapsed", time.Since(p.started)))
	}
	return resps
}

// rest drops the first n frames of b
func rest(b []byte, n int) []byte {
	frames, _ := channel.SplitFrames(b)
	used := 0
	for _, f := range frames[:n] {
		used += 4 + len(f)
	}
	if used == len(b) {
		return nil
	}
	return append([]byte(nil), b[used:]...)
}

// WaitForVerification waits until every id has a response, timeout passes, or the
// worker exits. Requests without a response after IdleTimeout are abandoned. It
// returns the responses that arrived, keyed by request ID, and removes all ids from
// the in-flight table.
func (c *Client) WaitForVerification(ctx context.Context, ids []uuid.UUID, timeout time.Duration) (map[uuid.UUID]*protocol.Response, error) {
	deadline := time.Now().Add(timeout)
	out := make(map[uuid.UUID]*protocol.Response, len(ids))
	defer func() {
		c.mu.Lock()
		for _, id := range ids {
			delete(c.inFlight, id)
		}
		c.mu.Unlock()
	}()

	for {
		c.Drain()
		waiting := 0
		c.mu.Lock()
		for _, id := range ids {
			p, ok := c.inFlight[id]
			if !ok {
				continue
			}
			switch {
			case p.response != nil:
				out[id] = p.response
			case time.Since(p.started) > c.opts.IdleTimeout:
				c.logger.Warn("abandoning request", zap.String("class", p.class), zap.Stringer("id", id))
				delete(c.inFlight, id)
			default:
				waiting++
			}
		}
		exited := c.exited
		c.mu.Unlock()

		if waiting == 0 {
			return out, nil
		}
		if time.Now().After(deadline) {
			return out, fmt.Errorf("%d requests still waiting after %s", waiting, timeout)
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-exited:
			c.Drain()
			return out, ErrWorkerExited
		case <-time.After(c.opts.PollInterval):
		}
	}
}

// InFlight returns how many requests await a response
func (c *Client) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// Verify implements manager.Backend. Classes whose response does not arrive get a
// nil result. A worker that exited since the last batch is launched again first.
func (c *Client) Verify(ctx context.Context, jobs []manager.Job) ([]*verify.Result, error) {
	if err := c.restartIfExited(ctx); err != nil {
		return make([]*verify.Result, len(jobs)), err
	}
	ids := make([]uuid.UUID, len(jobs))
	for i, job := range jobs {
		id, err := c.Submit(ctx, job.Class, job.Fingerprint.String())
		if err != nil {
			return make([]*verify.Result, len(jobs)), err
		}
		ids[i] = id
	}

	resps, err := c.WaitForVerification(ctx, ids, c.opts.IdleTimeout)
	results := make([]*verify.Result, len(jobs))
	for i, id := range ids {
		if r, ok := resps[id]; ok {
			results[i] = r.Result()
		}
	}
	return results, err
}

// restartIfExited relaunches a worker whose process is gone. Requests still waiting
// for the old process are dropped. A client that was never started is left alone.
func (c *Client) restartIfExited(ctx context.Context) error {
	c.mu.Lock()
	if c.cmd == nil {
		c.mu.Unlock()
		return nil
	}
	select {
	case <-c.exited:
	default:
		c.mu.Unlock()
		return nil
	}
	c.logger.Warn("worker exited, restarting it", zap.Error(c.exitErr), zap.Int("dropped", len(c.inFlight)))
	c.cleanup()
	c.cmd = nil
	c.exited = nil
	c.exitErr = nil
	c.partial = nil
	clear(c.inFlight)
	c.mu.Unlock()

	return c.Start(ctx)
}

// Close asks the worker to exit, kills it after the grace period and removes the
// channel files
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cmd == nil {
		c.cleanup()
		c.mu.Unlock()
		return nil
	}
	if frame, err := protocol.Encode(protocol.NewShutdownRequest()); err == nil {
		if werr := c.toWorker.Write(frame); werr != nil {
			c.logger.Warn("could not send shutdown", zap.Error(werr))
		}
	}
	cmd, exited := c.cmd, c.exited
	c.mu.Unlock()

	var err error
	select {
	case <-exited:
	case <-time.After(c.opts.ShutdownGrace):
		c.logger.Warn("worker did not exit, killing it", zap.Int("pid", cmd.Process.Pid))
		err = cmd.Process.Kill()
		<-exited
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanup()
	c.cmd = nil
	return err
}

// cleanup unmaps both channels and removes their files. c.mu must be held.
func (c *Client) cleanup() {
	if c.toWorker != nil {
		_ = c.toWorker.Close()
		c.toWorker = nil
	}
	if c.fromWorker != nil {
		_ = c.fromWorker.Close()
		c.fromWorker = nil
	}
	for _, p := range []string{c.requestPath, c.responsePath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("removing channel file", zap.String("path", p), zap.Error(err))
		}
	}
}
