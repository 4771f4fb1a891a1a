package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/koscakluka/ema-docchat/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireSchemasDescribeEveryMessage(t *testing.T) {
	schemas := wireSchemas()

	for _, name := range []string{"envelope", "message", events.MessageTypeTurn, events.MessageTypeState, events.MessageTypeError, events.MessageTypeControl} {
		require.Contains(t, schemas, name)
	}

	state, ok := schemas[events.MessageTypeState].Properties.Get("state")
	require.True(t, ok)
	assert.Len(t, state.Enum, 6)

	action, ok := schemas[events.MessageTypeControl].Properties.Get("action")
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"listen", "stop"}, action.Enum)
}

func TestSchemaCommandPrintsJSON(t *testing.T) {
	var out bytes.Buffer
	schemaCmd.SetOut(&out)
	t.Cleanup(func() { schemaCmd.SetOut(nil) })

	require.NoError(t, schemaCmd.RunE(schemaCmd, nil))

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Contains(t, decoded, "envelope")
	assert.Contains(t, decoded, "control")
}
