package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepStub struct {
	n     int
	err   error
	calls int
}

func (s *sweepStub) SweepExpired(ctx context.Context) (int, error) {
	s.calls++
	return s.n, s.err
}

func TestSessionSweeper(t *testing.T) {
	_, err := NewSessionSweeper(&sweepStub{}, "not a schedule", nil)
	assert.Error(t, err)

	stub := &sweepStub{n: 2}
	sweeper, err := NewSessionSweeper(stub, "@every 1m", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sweeper.Sweep(context.Background()))

	stub.err = errors.New("db down")
	assert.Zero(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, 2, stub.calls)

	sweeper.Start()
	sweeper.Stop(context.Background())
}
