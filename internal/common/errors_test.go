package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/joseph-ayodele/examlens/constants"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStageOf(t *testing.T) {
	cases := []struct {
		err  error
		want constants.Stage
	}{
		{&ExtractionError{Reason: "corrupt"}, constants.StageExtraction},
		{fmt.Errorf("run: %w", NewTransportError(503, errors.New("busy"))), constants.StageInference},
		{&SchemaViolation{Invariant: InvariantCategoryCount}, constants.StageValidation},
		{errors.New("disk full"), constants.StageTransport},
	}
	for _, tc := range cases {
		if got := StageOf(tc.err); got != tc.want {
			t.Errorf("StageOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestNewTransportErrorRetryable(t *testing.T) {
	cases := []struct {
		status int
		err    error
		want   bool
	}{
		{0, context.DeadlineExceeded, true},
		{0, context.Canceled, false},
		{429, errors.New("slow down"), true},
		{500, errors.New("boom"), true},
		{502, errors.New("bad gateway"), true},
		{400, errors.New("bad request"), false},
		{401, errors.New("unauthorized"), false},
	}
	for _, tc := range cases {
		if got := NewTransportError(tc.status, tc.err).Retryable; got != tc.want {
			t.Errorf("status %d err %v: retryable %v, want %v", tc.status, tc.err, got, tc.want)
		}
	}
}

func TestToGRPCError(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{ErrNotAvailable, codes.NotFound},
		{WrapError(ErrInvalidInput, "bad"), codes.InvalidArgument},
		{ErrQueueFull, codes.ResourceExhausted},
		{errors.New("other"), codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(ToGRPCError(tc.err)); got != tc.want {
			t.Errorf("ToGRPCError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
