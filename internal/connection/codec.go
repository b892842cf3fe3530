package connection

import (
	"encoding/json"
	"fmt"
)

// decodeFrame turns an inbound frame into an Event. A frame is an envelope only
// if it is a JSON object with a string "event" and a "data" member; anything
// else is returned under FallbackEvent with the frame itself as Data.
func decodeFrame(data []byte) Event {
	if name, payload, ok := decodeEnvelope(data); ok {
		return Event{Name: name, Data: payload}
	}
	return Event{
		Name: FallbackEvent,
		Data: json.RawMessage(append([]byte(nil), data...)),
		Raw:  true,
	}
}

func decodeEnvelope(data []byte) (string, json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return "", nil, false
	}

	rawName, ok := fields["event"]
	if !ok {
		return "", nil, false
	}
	payload, ok := fields["data"]
	if !ok {
		return "", nil, false
	}

	// A JSON null tag decodes without error, so require a real string.
	var name *string
	if err := json.Unmarshal(rawName, &name); err != nil || name == nil {
		return "", nil, false
	}
	return *name, payload, true
}

// encodeMessage serializes an outbound message. Strings and byte slices are
// sent verbatim; everything else goes through encoding/json.
func encodeMessage(msg any) ([]byte, error) {
	switch v := msg.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case nil:
		return nil, fmt.Errorf("encode message: nil message")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}
