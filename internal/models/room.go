package models

import "time"

// Room maps a client-chosen room id to the call room created with the
// communication provider.
type Room struct {
	ID             string    `json:"roomId"`
	ProviderRoomID string    `json:"azureRoomId"`
	CreatedBy      string    `json:"createdBy,omitempty"` // communication user id
	CreatedAt      time.Time `json:"createdAt"`
	ValidUntil     time.Time `json:"validUntil"`
}

// Participant is a member of a provider room.
type Participant struct {
	CommunicationUserID string `json:"communicationUserId"`
	Role                string `json:"role,omitempty"`
}
