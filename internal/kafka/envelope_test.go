package kafka

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecraft/commerce/internal/domain/order"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := encodeEnvelope("stock-consolidate", order.ConsolidationJob{OrderID: 42})
	require.NoError(t, err)

	env, err := decodeEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, "stock-consolidate", env.Name)
	assert.False(t, env.EmittedAt.IsZero())
	_, err = uuid.Parse(env.ID)
	assert.NoError(t, err)

	var job order.ConsolidationJob
	require.NoError(t, json.Unmarshal(env.Payload, &job))
	assert.Equal(t, int64(42), job.OrderID)
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	_, err := decodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeEnvelope_Incomplete(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"payload":{}}`))
	require.Error(t, err)
}

func TestQueueTopic(t *testing.T) {
	assert.Equal(t, "commerce.stock-consolidate", QueueTopic("stock-consolidate"))
}
