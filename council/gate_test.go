package council_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/council/council"
)

func TestChannelGateSubmitNeverBlocks(t *testing.T) {
	gate := council.NewChannelGate()

	require.NoError(t, gate.Submit(council.ClarificationResponse{Skip: true}))

	// a second response before the run drains the first is rejected
	// instead of blocking the caller
	err := gate.Submit(council.ClarificationResponse{Skip: true})
	assert.ErrorIs(t, err, council.ErrGateNotWaiting)
}

func TestChannelGateSubmitAfterResolveDrains(t *testing.T) {
	gate := council.NewChannelGate()
	require.NoError(t, gate.Submit(council.ClarificationResponse{Skip: true}))

	resp, err := gate.Resolve(context.Background(), council.ClarificationPrompt{})
	require.NoError(t, err)
	assert.True(t, resp.Skip)

	require.NoError(t, gate.Submit(council.ClarificationResponse{}))
	assert.ErrorIs(t, gate.Submit(council.ClarificationResponse{}), council.ErrGateNotWaiting)
}
