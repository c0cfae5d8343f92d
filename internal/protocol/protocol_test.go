package protocol

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/boundcheck/internal/checker"
	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/parser"
	"github.com/lhaig/boundcheck/internal/verify"
)

func TestVerifyRequestRoundTrip(t *testing.T) {
	p := parser.New(`class Counter {
    // Invariant: Count >= 0
    private int Count = 0;
    // Require: n > 0
    public void Add(int n) { if (n < 10) { Count = Count + n; } }
}`)
	classes := p.Parse()
	checker.Check(classes)
	require.Len(t, classes, 1)

	req, err := NewVerifyRequest(classes[0], "42:1")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, req.ID)

	frame, err := Encode(req)
	require.NoError(t, err)
	shutdown, err := Encode(NewShutdownRequest())
	require.NoError(t, err)

	reqs, err := DecodeRequests(append(frame, shutdown...))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, Verify, reqs[0].Type)
	assert.Equal(t, req.ID, reqs[0].ID)
	assert.Equal(t, "42:1", reqs[0].Fingerprint)
	assert.Equal(t, Shutdown, reqs[1].Type)

	class, err := reqs[0].DecodeClass()
	require.NoError(t, err)
	assert.Equal(t, "Counter", class.Name)
	require.Len(t, class.Methods, 1)
	assert.Equal(t, "n > 0", class.Methods[0].Requires[0].Text)

	_, err = reqs[1].DecodeClass()
	assert.Error(t, err)
}

func TestFromResult(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		result *verify.Result
		want   ErrorType
	}{
		{"safe", &verify.Result{ClassName: "A", State: verify.Safe}, Success},
		{"bounded", &verify.Result{ClassName: "A", State: verify.Safe, Bounded: []string{"loop at 4:9 explored for at most 4 iterations"}}, Success},
		{"skipped", &verify.Result{ClassName: "A", State: verify.Skipped}, Success},
		{"exception", &verify.Result{ClassName: "A", State: verify.Safe, Exceptions: []string{"boom"}}, Exception},
		{"require", &verify.Result{ClassName: "A", State: verify.ViolationFound, Violations: []model.Violation{{Kind: model.RequireViolation}}}, RequireError},
		{"ensure", &verify.Result{ClassName: "A", State: verify.ViolationFound, Violations: []model.Violation{{Kind: model.EnsureViolation}}}, EnsureError},
		{"invariant", &verify.Result{ClassName: "A", State: verify.ViolationFound, Violations: []model.Violation{{Kind: model.InvariantViolation}}}, InvariantError},
		{"assume", &verify.Result{ClassName: "A", State: verify.ViolationFound, Violations: []model.Violation{{Kind: model.AssumeViolation}}}, AssumeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := FromResult(id, tt.result)
			assert.Equal(t, tt.want, resp.ErrorType)
			assert.Equal(t, id, resp.RequestID)

			back := resp.Result()
			assert.Equal(t, tt.result.State, back.State)
			assert.Equal(t, tt.result.Exceptions, back.Exceptions)
			assert.Equal(t, tt.result.Bounded, back.Bounded)
		})
	}
}

func TestResponseHeadline(t *testing.T) {
	resp := FromResult(uuid.New(), &verify.Result{
		ClassName: "Shop.Cart",
		State:     verify.ViolationFound,
		Violations: []model.Violation{{
			Kind:     model.EnsureViolation,
			Method:   "Total",
			Location: model.Location{Line: 4, Column: 8},
			Text:     "Result >= 0",
			Message:  "postcondition may not hold",
		}},
	})

	frame, err := Encode(resp)
	require.NoError(t, err)
	resps, err := DecodeResponses(frame)
	require.NoError(t, err)
	require.Len(t, resps, 1)

	got := resps[0]
	assert.Equal(t, "Total", got.MethodName)
	assert.Equal(t, "4:8", got.LocationID)
	assert.Equal(t, "Result >= 0", got.Text)
	assert.Equal(t, "postcondition may not hold", got.Details)
}

func TestExceptionResponse(t *testing.T) {
	resp := ExceptionResponse(uuid.New(), "A", errors.New("bad model"))
	assert.Equal(t, Exception, resp.ErrorType)
	assert.True(t, resp.Result().HasExceptions())
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodeResponses(rawFrame("not json"))
	assert.Error(t, err)
	_, err = DecodeRequests([]byte{1, 2})
	assert.Error(t, err)
	_, err = DecodeRequest([]byte("{not json"))
	assert.Error(t, err)
}

func TestDecodeRequest(t *testing.T) {
	frame, err := Encode(NewShutdownRequest())
	require.NoError(t, err)
	req, err := DecodeRequest(frame[4:])
	require.NoError(t, err)
	assert.Equal(t, Shutdown, req.Type)
}

// rawFrame frames text without JSON encoding it
func rawFrame(s string) []byte {
	return append([]byte{byte(4 + len(s)), 0, 0, 0}, s...)
}
