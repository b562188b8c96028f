package types

// Wire protocol with the face-recognition service.
//
// Outbound (client → server):
//   - one JSON config frame at connect: {"group_ids": [7, 9]}
//   - one text frame per capture:       data:image/jpeg;base64,<...>
//
// Inbound (server → client): JSON messages with a "type" discriminator.
// Unrecognized types are ignored; the server is free to add new ones.

// Message type discriminators sent by the server.
const (
	MsgStatus    = "status"
	MsgFrameData = "frame_data"
	MsgMatch     = "match"
)

// StatusReady is the status message that signals the server has finished
// initializing its per-session matching state. Capture must not start
// before this arrives, even if the socket has been open for a while.
const StatusReady = "ready"

// SessionConfig is the first frame sent after the socket opens. GroupIDs
// bounds which students the server is allowed to match against.
type SessionConfig struct {
	GroupIDs []int64 `json:"group_ids"`
}

// DetectionBox is one face bounding box reported by the server, in the
// coordinate space of the image the client sent (target-width pixels).
type DetectionBox struct {
	// Box is [x1, y1, x2, y2]
	Box   [4]int `json:"box"`
	Label string `json:"label"`
	// Color is "green" for a positive match, anything else for unknown
	Color string `json:"color"`
}

// IsMatch reports whether the box marks a positively identified face.
func (b DetectionBox) IsMatch() bool {
	return b.Color == "green"
}

// MatchedStudent is a student the server has positively identified.
type MatchedStudent struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
}

// ServerMessage is the envelope for all inbound messages. Fields beyond
// Type are populated depending on the discriminator.
type ServerMessage struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Boxes   []DetectionBox  `json:"boxes,omitempty"`
	Student *MatchedStudent `json:"student,omitempty"`
}
