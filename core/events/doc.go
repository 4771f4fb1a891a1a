// Package events defines the typed conversation event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - conversation.*
//   - user_input.*
//   - control.*
//
// conversation events
//
//   - StateChanged (conversation.state_changed): the orchestrator moved to a
//     new state.
//   - TurnAppended (conversation.turn_appended): a turn was appended to the
//     conversation log. Turns are never changed once appended.
//   - ErrorLatched (conversation.error_latched): an error of a category was
//     latched and stays visible until the next successful operation of the
//     same category.
//   - ErrorCleared (conversation.error_cleared): a latched error was cleared.
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): speech activity began.
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     mutable interim transcript snapshot.
//
// control events
//
//   - ControlRequested (control.requested): a remote participant asked the
//     orchestrator to listen or stop.
//
// The subset of events relayed to the other participants of a room is
// encoded with the payload types in wire.go.
package events
