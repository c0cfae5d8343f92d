package manager

import (
	"context"

	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/verify"
)

// Job is one class handed to a backend. Class is a private clone.
type Job struct {
	Class       *model.ClassModel
	Fingerprint Fingerprint
}

// Backend verifies batches of classes. Results are positional; a nil result means
// the class was not verified this time.
type Backend interface {
	Verify(ctx context.Context, jobs []Job) ([]*verify.Result, error)
}

// ClassVerifier checks a single class
type ClassVerifier interface {
	Verify(ctx context.Context, class *model.ClassModel) *verify.Result
}

// InProcessBackend verifies in the calling process
type InProcessBackend struct {
	verifier ClassVerifier
}

// NewInProcessBackend wraps verifier
func NewInProcessBackend(verifier ClassVerifier) *InProcessBackend {
	return &InProcessBackend{verifier: verifier}
}

// Verify implements Backend
func (b *InProcessBackend) Verify(ctx context.Context, jobs []Job) ([]*verify.Result, error) {
	results := make([]*verify.Result, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results[i] = b.verifier.Verify(ctx, job.Class)
	}
	return results, nil
}
