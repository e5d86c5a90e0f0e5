package serialization

import (
	"testing"

	"github.com/glimte/courier-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializer(t *testing.T) {
	t.Run("round-trips all envelope fields", func(t *testing.T) {
		s := NewJSONSerializer()

		envelope := &contracts.Envelope{
			ID:      "router-a.12345",
			ReplyTo: "router-b.99",
			ReplyOn: contracts.Destination{Queue: "router-a.reply", Exchange: "courier"},
			From:    "router-a",
			To:      "router-b",
			Message: []byte("payload bytes"),
		}

		data, err := s.Serialize(envelope)
		require.NoError(t, err)

		decoded, err := s.Unserialize(data)
		require.NoError(t, err)
		assert.Equal(t, envelope, decoded)
	})

	t.Run("preserves empty replyTo and to", func(t *testing.T) {
		s := NewJSONSerializer()

		envelope := &contracts.Envelope{
			ID:      "router-a.1",
			From:    "router-a",
			Message: []byte{0x00, 0xff, 0x10},
		}

		data, err := s.Serialize(envelope)
		require.NoError(t, err)

		decoded, err := s.Unserialize(data)
		require.NoError(t, err)
		assert.Empty(t, decoded.ReplyTo)
		assert.Empty(t, decoded.To)
		assert.False(t, decoded.IsReply())
		assert.Equal(t, envelope.Message, decoded.Message)
	})

	t.Run("rejects nil envelope", func(t *testing.T) {
		s := NewJSONSerializer()

		_, err := s.Serialize(nil)
		assert.Error(t, err)
	})

	t.Run("rejects empty data", func(t *testing.T) {
		s := NewJSONSerializer()

		_, err := s.Unserialize(nil)
		assert.Error(t, err)
	})

	t.Run("rejects malformed data", func(t *testing.T) {
		s := NewJSONSerializer()

		_, err := s.Unserialize([]byte("{not json"))
		assert.Error(t, err)
	})
}
