package routing

import (
	"context"
	"testing"

	"github.com/glimte/courier-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler() Handler {
	return HandlerFunc(func(ctx context.Context, envelope *contracts.Envelope, delivery contracts.Delivery) ([]byte, error) {
		return nil, nil
	})
}

func TestConsumerTableRegister(t *testing.T) {
	t.Run("allocates indexes in assignment order", func(t *testing.T) {
		table := NewConsumerTable(nil)

		first := table.Register(noopHandler(), "q1", "", "")
		second := table.Register(noopHandler(), "q2", "topic", "exchange")

		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)
		assert.Len(t, table.Registrations(), 2)
	})
}

func TestConsumerTableUpdate(t *testing.T) {
	t.Run("fills in broker-confirmed queue and tag", func(t *testing.T) {
		table := NewConsumerTable(nil)

		index := table.Register(noopHandler(), "", "", "")
		require.NoError(t, table.Update(index, "amq.gen-xyz", "ct-1"))

		reg, ok := table.ByConsumerTag("ct-1")
		require.True(t, ok)
		assert.Equal(t, "amq.gen-xyz", reg.Queue)
		assert.Equal(t, index, reg.Index)
	})

	t.Run("fails for a removed index", func(t *testing.T) {
		table := NewConsumerTable(nil)

		index := table.Register(noopHandler(), "q", "", "")
		require.NoError(t, table.Unregister(index))

		err := table.Update(index, "q", "ct-1")
		var unknown *UnknownIndexError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, index, unknown.Index)
	})
}

func TestConsumerTableUnregister(t *testing.T) {
	t.Run("supports rollback before the tag is known", func(t *testing.T) {
		table := NewConsumerTable(nil)

		index := table.Register(noopHandler(), "q", "", "")
		require.NoError(t, table.Unregister(index))
		assert.Empty(t, table.Registrations())
	})

	t.Run("fails for an unknown index", func(t *testing.T) {
		table := NewConsumerTable(nil)

		var unknown *UnknownIndexError
		assert.ErrorAs(t, table.Unregister(42), &unknown)
	})
}

func TestConsumerTableHandlerByConsumerTag(t *testing.T) {
	t.Run("resolves the registered handler", func(t *testing.T) {
		table := NewConsumerTable(nil)

		called := false
		handler := HandlerFunc(func(ctx context.Context, envelope *contracts.Envelope, delivery contracts.Delivery) ([]byte, error) {
			called = true
			return nil, nil
		})

		index := table.Register(handler, "q", "", "")
		require.NoError(t, table.Update(index, "q", "ct-1"))

		resolved, err := table.HandlerByConsumerTag("ct-1")
		require.NoError(t, err)

		_, err = resolved.Handle(context.Background(), &contracts.Envelope{}, contracts.Delivery{})
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("fails for an untracked tag", func(t *testing.T) {
		table := NewConsumerTable(nil)

		index := table.Register(noopHandler(), "q", "", "")
		require.NoError(t, table.Update(index, "q", "ct-1"))

		_, err := table.HandlerByConsumerTag("ct-2")
		var notFound *HandlerNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "ct-2", notFound.ConsumerTag)
	})

	t.Run("never matches a provisional registration", func(t *testing.T) {
		table := NewConsumerTable(nil)

		table.Register(noopHandler(), "q", "", "")

		_, err := table.HandlerByConsumerTag("")
		assert.Error(t, err)
	})
}
