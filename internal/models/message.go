package models

// Kind classifies a relayed message.
type Kind string

const (
	KindTranscriptPartial Kind = "transcript-partial"
	KindTranscriptFinal   Kind = "transcript-final"
	KindGesture           Kind = "gesture"
)

// TranscriptKind maps the wire value of a transcription message ("partial" or
// "final") to its Kind. The second result is false for any other value.
func TranscriptKind(wire string) (Kind, bool) {
	switch wire {
	case "partial":
		return KindTranscriptPartial, true
	case "final":
		return KindTranscriptFinal, true
	}
	return "", false
}

// Wire returns the value clients send in the "type" field.
func (k Kind) Wire() string {
	switch k {
	case KindTranscriptPartial:
		return "partial"
	case KindTranscriptFinal:
		return "final"
	}
	return string(k)
}

// Role identifies which side of a call produced a message. The hearing
// participant speaks (transcripts), the deaf participant signs (gestures).
type Role string

const (
	RoleHearing Role = "hearing"
	RoleDeaf    Role = "deaf"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHearing || r == RoleDeaf
}

// Message is one entry of a room relay log.
type Message struct {
	ID              int64  `json:"id" msgpack:"id"`
	Kind            Kind   `json:"kind" msgpack:"kind"`
	Text            string `json:"text" msgpack:"text"`
	Timestamp       int64  `json:"timestamp" msgpack:"ts"` // client supplied, not validated
	ParticipantType Role   `json:"participantType" msgpack:"role"`
	ParticipantName string `json:"participantName" msgpack:"name"`
}
