package subscription

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/DeveloperBeau/AutoGraph/errors"
	"github.com/DeveloperBeau/AutoGraph/protocol"
)

const filmQuery = `subscription film($id: ID!) {
  film(id: $id) {
    title
  }
}`

func TestNewRequestNamedOperation(t *testing.T) {
	req, err := NewRequest(filmQuery, map[string]any{"id": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "film", req.OperationName())
	assert.Equal(t, "film:{id : abc,}", req.ID())
}

func TestNewRequestAnonymousFallsBackToRootField(t *testing.T) {
	req, err := NewRequest(`subscription { launches { mission } }`, nil)
	require.NoError(t, err)
	assert.Equal(t, "launches", req.OperationName())
	assert.Equal(t, "launches", req.ID())
}

func TestNewRequestRejectsMalformedDocument(t *testing.T) {
	_, err := NewRequest(`subscription {`, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewRequestRejectsNonSubscription(t *testing.T) {
	_, err := NewRequest(`query { film(id: "abc") { title } }`, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestStartFrameCarriesAuthorization(t *testing.T) {
	req, err := NewRequest(filmQuery, map[string]any{"id": "abc"})
	require.NoError(t, err)
	req = req.WithAuthorization("t0k3n", "swapi.example.com")

	data, err := req.StartFrame()
	require.NoError(t, err)

	var msg protocol.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, protocol.MsgStart, msg.Type)
	assert.Equal(t, "film:{id : abc,}", msg.ID)

	var payload protocol.StartPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, filmQuery, payload.Query)
	assert.Equal(t, "t0k3n", payload.Extensions.Authorization.Token)
	assert.Equal(t, "swapi.example.com", payload.Extensions.Authorization.Host)
}

func TestStartFrameStableBytes(t *testing.T) {
	req, err := NewRequest(filmQuery, map[string]any{"id": "abc", "lang": "en"})
	require.NoError(t, err)

	first, err := req.StartFrame()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := req.StartFrame()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestErrorFromPayloadGraphQLList(t *testing.T) {
	err := ErrorFromPayload(json.RawMessage(`[{"message":"field not found"}]`))
	require.Error(t, err)

	var list gqlerror.List
	require.True(t, errors.As(err, &list))
	assert.Equal(t, "field not found", list[0].Message)
}

func TestErrorFromPayloadSingleError(t *testing.T) {
	err := ErrorFromPayload(json.RawMessage(`{"message":"unauthorized"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestErrorFromPayloadOpaque(t *testing.T) {
	err := ErrorFromPayload(json.RawMessage(`"something went wrong"`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSubscriptionFailed)
}
