package main

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-docchat/core/events"
	"github.com/koscakluka/ema-docchat/core/notifications"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the room notification messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := json.MarshalIndent(wireSchemas(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

// wireSchemas describes the envelope, the relayed message and every payload
// the orchestrator publishes or accepts.
func wireSchemas() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{ExpandedStruct: true}

	schemas := map[string]*jsonschema.Schema{
		"envelope": r.Reflect(&notifications.Envelope{}),
		"message":  r.Reflect(&notifications.Message{}),
	}
	schemas[events.MessageTypeTurn] = r.Reflect(&events.TurnPayload{})
	schemas[events.MessageTypeState] = r.Reflect(&events.StatePayload{})
	schemas[events.MessageTypeError] = r.Reflect(&events.ErrorPayload{})
	schemas[events.MessageTypeControl] = r.Reflect(&events.ControlPayload{})
	return schemas
}
