// Package capture receives browser speech-capture events over a WebSocket
// and feeds them into the voice reconciliation pipeline.
//
// Speech recognition itself runs in the browser; the server never sees
// audio. A connected client reports exactly four kinds of capture events —
// session started, cumulative interim result, capture error, session ended
// — plus focus changes, and receives live record snapshots, pipeline state,
// and error notices in return. One WebSocket connection corresponds to one
// authenticated capture session with its own orchestrator and record
// snapshot.
package capture

import "github.com/ideaspark/ideaspark/internal/idea"

// Inbound frame types (client to server).
const (
	frameCaptureStarted = "capture_started"
	frameCaptureResult  = "capture_result"
	frameCaptureError   = "capture_error"
	frameCaptureEnded   = "capture_ended"
	frameFocus          = "focus"
)

// Outbound frame types (server to client).
const (
	frameSnapshot  = "snapshot"
	frameState     = "state"
	frameError     = "error"
	frameSyncError = "sync_error"
)

// inboundFrame is the envelope for all client-to-server messages.
type inboundFrame struct {
	Type string `json:"type"`

	// Transcript carries the cumulative session text on capture_result
	// frames. Each frame replaces the previous one wholesale.
	Transcript string `json:"transcript,omitempty"`

	// Reason names the capture failure on capture_error frames, using the
	// browser's error codes ("no-speech", "not-allowed", ...).
	Reason string `json:"reason,omitempty"`

	// IdeaID carries the focused record on focus frames; empty clears the
	// focus back to the list view.
	IdeaID string `json:"ideaId,omitempty"`
}

// outboundFrame is the envelope for all server-to-client messages.
type outboundFrame struct {
	Type string `json:"type"`

	// Ideas is the owner's full record set on snapshot frames, ordered
	// newest first. Always present (possibly empty) on snapshot frames so
	// clients can distinguish "no ideas" from "no snapshot".
	Ideas []idea.Idea `json:"ideas"`

	// State is the pipeline display state ("idle", "listening",
	// "processing") on state frames.
	State string `json:"state,omitempty"`

	// Message carries the human-readable text of error and sync_error
	// frames. An error frame is dismissible; a sync_error frame stands
	// until the next snapshot frame arrives.
	Message string `json:"message,omitempty"`
}
