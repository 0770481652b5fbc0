package models

import (
	"fmt"
	"net/url"
	"regexp"
)

var bytes32HexPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsBytes32Hex reports whether s is exactly "0x" followed by 64 hex
// characters, the wire format for entityIdHash/previousEntityHash.
func IsBytes32Hex(s string) bool {
	return bytes32HexPattern.MatchString(s)
}

// ExtractGlobalID is a pure function returning the value of the "hl" query
// parameter of dataLocation. It returns an error if dataLocation does not
// parse as a URL, or if "hl" is absent or empty.
func ExtractGlobalID(dataLocation string) (string, error) {
	u, err := url.Parse(dataLocation)
	if err != nil {
		return "", fmt.Errorf("dataLocation is not a valid URL: %w", err)
	}

	globalID := u.Query().Get("hl")
	if globalID == "" {
		return "", fmt.Errorf("dataLocation is missing the hl query parameter")
	}

	return globalID, nil
}

// StripNetwork returns a copy of event with Network cleared. It is
// idempotent: stripping an event that already has no Network is a no-op.
func StripNetwork(event Event) Event {
	event.Network = ""
	return event
}

// ToPublishRequest builds the publish request sent to target adapters
// during replication, per the fields named in the replicator's contract:
// eventType, dataLocation, relevantMetadata, entityId (from EntityIDHash),
// previousEntityHash. The network attribute is never carried over.
func ToPublishRequest(event Event) PublishRequest {
	return PublishRequest{
		EventType:          event.EventType,
		DataLocation:       event.DataLocation,
		RelevantMetadata:   event.RelevantMetadata,
		EntityID:           event.EntityIDHash,
		PreviousEntityHash: event.PreviousEntityHash,
	}
}
