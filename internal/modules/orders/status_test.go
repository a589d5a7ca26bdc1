package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	t.Run("forward chain", func(t *testing.T) {
		assert.True(t, CanTransition(StatusPending, StatusPaid))
		assert.True(t, CanTransition(StatusPaid, StatusConfirmed))
		assert.True(t, CanTransition(StatusConfirmed, StatusProcessing))
		assert.True(t, CanTransition(StatusProcessing, StatusShipped))
		assert.True(t, CanTransition(StatusShipped, StatusDelivered))
	})

	t.Run("skipping forward is allowed", func(t *testing.T) {
		assert.True(t, CanTransition(StatusPending, StatusShipped))
		assert.True(t, CanTransition(StatusPaid, StatusDelivered))
	})

	t.Run("never backwards", func(t *testing.T) {
		assert.False(t, CanTransition(StatusShipped, StatusProcessing))
		assert.False(t, CanTransition(StatusPaid, StatusPending))
	})

	t.Run("self transition rejected", func(t *testing.T) {
		assert.False(t, CanTransition(StatusPaid, StatusPaid))
		assert.False(t, CanTransition(StatusCancelled, StatusCancelled))
	})

	t.Run("compensation reachable before delivery", func(t *testing.T) {
		assert.True(t, CanTransition(StatusPending, StatusCancelled))
		assert.True(t, CanTransition(StatusShipped, StatusReturned))
		assert.True(t, CanTransition(StatusPaid, StatusRefunded))
	})

	t.Run("terminal states accept nothing", func(t *testing.T) {
		assert.False(t, CanTransition(StatusDelivered, StatusRefunded))
		assert.False(t, CanTransition(StatusCancelled, StatusPaid))
		assert.False(t, CanTransition(StatusRefunded, StatusCancelled))
		assert.False(t, CanTransition(StatusReturned, StatusDelivered))
	})

	t.Run("unknown states rejected", func(t *testing.T) {
		assert.False(t, CanTransition("bogus", StatusPaid))
		assert.False(t, CanTransition(StatusPending, "bogus"))
	})
}

func TestIsTerminalStatus(t *testing.T) {
	for _, s := range []string{StatusDelivered, StatusCancelled, StatusRefunded, StatusReturned} {
		assert.True(t, IsTerminalStatus(s), s)
	}
	for _, s := range []string{StatusPending, StatusPaid, StatusConfirmed, StatusProcessing, StatusShipped} {
		assert.False(t, IsTerminalStatus(s), s)
	}
}

func TestCancellable(t *testing.T) {
	for _, s := range []string{StatusPending, StatusPaid, StatusConfirmed} {
		assert.True(t, Cancellable(s), s)
	}
	for _, s := range []string{StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded, StatusReturned} {
		assert.False(t, Cancellable(s), s)
	}
}
