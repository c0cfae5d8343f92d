// Package worker serves verification requests arriving over a channel pair. It runs
// in its own process so that a solver crash or runaway encoding cannot take the
// host down.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/channel"
	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/protocol"
	"github.com/lhaig/boundcheck/internal/verify"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boundcheck_worker_requests_total",
		Help: "Requests handled by the worker, by type",
	}, []string{"type"})

	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boundcheck_worker_responses_total",
		Help: "Responses written by the worker, by error type",
	}, []string{"error_type"})

	writeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boundcheck_worker_write_retries_total",
		Help: "Times a response waited for space in the output channel",
	})

	verifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "boundcheck_worker_verify_duration_seconds",
		Help:    "Time spent verifying one class",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// ErrShutdown is returned by Serve after a shutdown request
var ErrShutdown = errors.New("shutdown requested")

// Verifier checks one class
type Verifier interface {
	Verify(ctx context.Context, class *model.ClassModel) *verify.Result
}

// Server reads requests from in and writes responses to out
type Server struct {
	in           *channel.Channel
	out          *channel.Channel
	verifier     Verifier
	logger       *zap.Logger
	pollInterval time.Duration
	pending      []byte
}

// NewServer returns a server over an already opened channel pair
func NewServer(in, out *channel.Channel, verifier Verifier, pollInterval time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	return &Server{in: in, out: out, verifier: verifier, logger: logger, pollInterval: pollInterval}
}

// Open attaches to the host's request channel and creates the response channel
func Open(requestPath, responsePath string, capacity int) (in, out *channel.Channel, err error) {
	in, err = channel.Open(requestPath, capacity, false)
	if err != nil {
		return nil, nil, fmt.Errorf("open request channel: %w", err)
	}
	out, err = channel.Open(responsePath, capacity, true)
	if err != nil {
		in.Close()
		return nil, nil, fmt.Errorf("create response channel: %w", err)
	}
	return in, out, nil
}

// Serve handles requests until a shutdown request arrives or ctx is done. A shutdown
// request returns nil.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("worker started", zap.Int("capacity", s.in.Capacity()))
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		err := s.poll(ctx)
		if errors.Is(err, ErrShutdown) {
			s.logger.Info("worker shutting down")
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll handles every request currently in the channel. A frame that does not decode
// is logged and skipped.
func (s *Server) poll(ctx context.Context) error {
	data := s.in.Read()
	if data == nil {
		return nil
	}
	s.pending = append(s.pending, data...)
	frames, _ := channel.SplitFrames(s.pending)
	s.pending = unconsumed(s.pending, frames)

	for _, f := range frames {
		req, err := protocol.DecodeRequest(f)
		if err != nil {
			requestsTotal.WithLabelValues("invalid").Inc()
			s.logger.Error("skipping unreadable request", zap.Int("bytes", len(f)), zap.Error(err))
			continue
		}
		requestsTotal.WithLabelValues(string(req.Type)).Inc()
		switch req.Type {
		case protocol.Shutdown:
			return ErrShutdown
		case protocol.Verify:
			resp := s.handle(ctx, req)
			if err := s.respond(ctx, resp); err != nil {
				return err
			}
		default:
			s.logger.Warn("ignoring unknown request", zap.String("type", string(req.Type)))
		}
	}
	return nil
}

// unconsumed returns the bytes after the complete frames, which wait for the rest of
// their frame
func unconsumed(b []byte, frames [][]byte) []byte {
	n := 0
	for _, f := range frames {
		n += 4 + len(f)
	}
	if n == len(b) {
		return nil
	}
	return append([]byte(nil), b[n:]...)
}

func (s *Server) handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	class, err := req.DecodeClass()
	if err != nil {
		s.logger.Error("bad request", zap.Stringer("id", req.ID), zap.Error(err))
		return protocol.ExceptionResponse(req.ID, "", err)
	}
	logger := s.logger.With(zap.String("class", class.Name), zap.Stringer("id", req.ID))

	if class.IsVerified {
		logger.Debug("class already verified")
		return &protocol.Response{RequestID: req.ID, ClassName: class.Name, ErrorType: protocol.Success}
	}

	start := time.Now()
	result := s.verifier.Verify(ctx, class)
	verifyDuration.Observe(time.Since(start).Seconds())
	logger.Debug("verified", zap.Stringer("state", result.State))
	return protocol.FromResult(req.ID, result)
}

// respond writes resp, waiting for the host to make room when the channel is full
func (s *Server) respond(ctx context.Context, resp *protocol.Response) error {
	frame, err := protocol.Encode(resp)
	if err != nil {
		return err
	}
	if len(frame) > s.out.Capacity()-1 {
		tooLarge := fmt.Errorf("response of %d bytes exceeds channel capacity", len(frame))
		if resp.ErrorType == protocol.Exception {
			return tooLarge
		}
		return s.respond(ctx, protocol.ExceptionResponse(resp.RequestID, resp.ClassName, tooLarge))
	}
	for {
		err := s.out.Write(frame)
		if err == nil {
			responsesTotal.WithLabelValues(string(resp.ErrorType)).Inc()
			return nil
		}
		if !errors.Is(err, channel.ErrInsufficientSpace) {
			return fmt.Errorf("writing response: %w", err)
		}
		writeRetries.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}
