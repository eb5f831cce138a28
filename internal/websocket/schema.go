package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────
//
// The stream is one-directional apart from pings: the engine pushes clock
// ticks and lifecycle events, clients only listen. Session events reuse the
// session package's Event shape verbatim.

type Event string

const (
	EventError Event = "error"
	EventHello Event = "hello"
	EventPong  Event = "pong"
)

// HelloResponse confirms the stream is attached and reports both clocks so
// the client can render immediately instead of waiting for the next tick.
type HelloResponse struct {
	Event              Event `json:"event"`
	AttemptID          int64 `json:"attempt_id"`
	TestRemainingMS    int64 `json:"test_remaining_ms"`
	SectionRemainingMS int64 `json:"section_remaining_ms"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
