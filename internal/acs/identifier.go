package acs

import (
	"encoding/json"
	"strings"
)

// IdentifierID extracts a user id from any identifier shape the API
// returns: a bare string, {"rawId"}, {"id"}, {"communicationUser": {"id"}}
// or {"properties": {"id"}}. It returns "" when no id is present. All
// unwrapping of provider identifiers happens here.
func IdentifierID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj struct {
		RawID             string          `json:"rawId"`
		ID                json.RawMessage `json:"id"`
		CommunicationUser json.RawMessage `json:"communicationUser"`
		Properties        json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}

	switch {
	case obj.RawID != "":
		return obj.RawID
	case len(obj.CommunicationUser) > 0:
		if id := IdentifierID(obj.CommunicationUser); id != "" {
			return id
		}
	}
	if id := IdentifierID(obj.ID); id != "" {
		return id
	}
	return IdentifierID(obj.Properties)
}
