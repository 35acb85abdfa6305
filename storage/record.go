package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ruteri/sealed-config/interfaces"
)

// Node records are JSON objects. A field path addresses nested objects by
// key; the value stored at the leaf is an arbitrary JSON document.

func loadRecordField(record []byte, path interfaces.FieldPath) ([]byte, error) {
	if len(bytes.TrimSpace(record)) == 0 {
		return nil, interfaces.ErrFieldNotFound
	}

	current := json.RawMessage(record)
	for _, segment := range path.Segments() {
		var object map[string]json.RawMessage
		if err := json.Unmarshal(current, &object); err != nil || object == nil {
			return nil, interfaces.ErrFieldNotFound
		}
		next, ok := object[segment]
		if !ok {
			return nil, interfaces.ErrFieldNotFound
		}
		current = next
	}

	if bytes.Equal(bytes.TrimSpace(current), []byte("null")) {
		return nil, interfaces.ErrFieldNotFound
	}
	return current, nil
}

func saveRecordField(record []byte, path interfaces.FieldPath, raw []byte) ([]byte, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("value for field %s is not a JSON document", path)
	}
	if len(bytes.TrimSpace(record)) == 0 {
		record = []byte("{}")
	}

	updated, err := setField(record, path.Segments(), raw)
	if err != nil {
		return nil, fmt.Errorf("cannot set field %s: %w", path, err)
	}
	return updated, nil
}

func setField(current json.RawMessage, segments []string, raw []byte) (json.RawMessage, error) {
	object := map[string]json.RawMessage{}
	if len(current) > 0 && !bytes.Equal(bytes.TrimSpace(current), []byte("null")) {
		if err := json.Unmarshal(current, &object); err != nil {
			return nil, fmt.Errorf("%q is not an object", segments[0])
		}
		if object == nil {
			object = map[string]json.RawMessage{}
		}
	}

	if len(segments) == 1 {
		object[segments[0]] = raw
	} else {
		child, err := setField(object[segments[0]], segments[1:], raw)
		if err != nil {
			return nil, err
		}
		object[segments[0]] = child
	}

	return json.Marshal(object)
}
