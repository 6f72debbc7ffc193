package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/maxpert/ringfs/node"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusMapping_RoundTrip(t *testing.T) {
	peer := node.Peer{ID: 7, Address: "10.0.0.7:9400"}

	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"unknown round", fmt.Errorf("round 9: %w", node.ErrUnknownRound), codes.FailedPrecondition},
		{"lock not held", fmt.Errorf("%w: file 'a'", node.ErrLockNotHeld), codes.FailedPrecondition},
		{"lock timeout", fmt.Errorf("%w: file 'a': %v", node.ErrLockTimeout, context.DeadlineExceeded), codes.DeadlineExceeded},
		{"no local replica", fmt.Errorf("%w: a", node.ErrNoLocalReplica), codes.NotFound},
		{"not bound", fmt.Errorf("%w: x", node.ErrNotBound), codes.Unavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := toStatus(tc.err)
			assert.Equal(t, tc.code, status.Code(st))

			back := fromStatus(peer, MethodVote, st)
			for _, w := range wireErrors {
				if errors.Is(tc.err, w.err) {
					assert.ErrorIs(t, back, w.err)
				}
			}
			assert.Contains(t, back.Error(), peer.String())
		})
	}
}

func TestStatusMapping_TransportFailureIsNotBound(t *testing.T) {
	peer := node.Peer{ID: 7, Address: "10.0.0.7:9400"}

	err := fromStatus(peer, MethodVote, status.Error(codes.Unavailable, "connection refused"))
	assert.ErrorIs(t, err, node.ErrNotBound)

	err = fromStatus(peer, MethodVote, status.Error(codes.DeadlineExceeded, "context deadline exceeded"))
	assert.ErrorIs(t, err, node.ErrNotBound)

	err = fromStatus(peer, MethodVote, status.Error(codes.Internal, "disk on fire"))
	assert.NotErrorIs(t, err, node.ErrNotBound)
}

func TestToStatus_LockHeldIsAborted(t *testing.T) {
	err := toStatus(&node.LockHeldError{Filename: "a", RequestID: 1})
	assert.Equal(t, codes.Aborted, status.Code(err))
	assert.Nil(t, toStatus(nil))
}
