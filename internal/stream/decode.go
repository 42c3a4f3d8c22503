package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// DecodeError reports a message that is not a recognised event.
// Raw keeps the original payload for logging.
type DecodeError struct {
	Raw    []byte
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode stream event: " + e.Reason
}

func newDecodeError(raw []byte, format string, args ...any) *DecodeError {
	kept := make([]byte, len(raw))
	copy(kept, raw)
	return &DecodeError{Raw: kept, Reason: fmt.Sprintf(format, args...)}
}

type fieldType int

const (
	fieldString fieldType = iota
	fieldID
	fieldArray
	fieldObject
)

type requiredField struct {
	name string
	typ  fieldType
}

var required = map[Kind][]requiredField{
	KindThinking:  {{"message", fieldString}},
	KindArtifact:  {{"data", fieldObject}},
	KindRanked:    {{"jobs", fieldArray}},
	KindTailoring: {{"job_id", fieldID}},
	KindAuditing:  {{"job_id", fieldID}},
	KindApplying:  {{"job_id", fieldID}},
	KindApplied:   {{"job_id", fieldID}},
	KindViolation: {{"job_id", fieldID}, {"reason", fieldString}, {"details", fieldArray}},
	KindComplete:  {{"message", fieldString}},
	KindError:     {{"message", fieldString}},
}

type wireEvent struct {
	Message  string      `mapstructure:"message"`
	JobID    string      `mapstructure:"job_id"`
	JobTitle string      `mapstructure:"job_title"`
	Reason   string      `mapstructure:"reason"`
	Details  []string    `mapstructure:"details"`
	Jobs     []RankedJob `mapstructure:"jobs"`
	Data     *Artifact   `mapstructure:"data"`
}

// Decode parses one inbound message. A ranked list with a broken payload is
// returned as a ranked event with Malformed set instead of an error.
func Decode(raw []byte) (Event, error) {
	var payload map[string]any

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Event{}, newDecodeError(raw, "invalid json: %v", err)
	}
	if payload == nil {
		return Event{}, newDecodeError(raw, "payload is not an object")
	}

	status, ok := payload["status"]
	if !ok || status == nil {
		// Authentication rejections arrive as {"error": "..."} without a status.
		if msg, ok := payload["error"].(string); ok && msg != "" {
			return Event{Kind: KindError, Message: msg}, nil
		}
		return Event{}, newDecodeError(raw, "missing status")
	}

	name, ok := status.(string)
	if !ok {
		return Event{}, newDecodeError(raw, "status is %T, not a string", status)
	}

	kind := Kind(name)
	fields, ok := required[kind]
	if !ok {
		return Event{}, newDecodeError(raw, "unknown status %q", name)
	}

	for _, field := range fields {
		if reason := checkField(payload, field); reason != "" {
			if kind == KindRanked {
				return Event{Kind: kind, Malformed: reason}, nil
			}
			return Event{}, newDecodeError(raw, "%s event: %s", kind, reason)
		}
	}

	var wire wireEvent
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       tagFromString,
		WeaklyTypedInput: true,
		Result:           &wire,
	})
	if err != nil {
		return Event{}, newDecodeError(raw, "build decoder: %v", err)
	}
	if err := decoder.Decode(payload); err != nil {
		if kind == KindRanked {
			return Event{Kind: kind, Malformed: err.Error()}, nil
		}
		return Event{}, newDecodeError(raw, "%s event: %v", kind, err)
	}

	event := Event{
		Kind:     kind,
		Message:  wire.Message,
		JobID:    wire.JobID,
		JobTitle: wire.JobTitle,
		Reason:   wire.Reason,
		Details:  wire.Details,
		Jobs:     wire.Jobs,
		Artifact: wire.Data,
	}
	if kind == KindArtifact && event.Artifact == nil {
		event.Artifact = &Artifact{}
	}

	return event, nil
}

func checkField(payload map[string]any, field requiredField) string {
	value, ok := payload[field.name]
	if !ok || value == nil {
		return fmt.Sprintf("missing %s", field.name)
	}

	switch field.typ {
	case fieldString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%s is %T, not a string", field.name, value)
		}
	case fieldID:
		switch id := value.(type) {
		case string:
			if id == "" {
				return fmt.Sprintf("empty %s", field.name)
			}
		case json.Number:
		default:
			return fmt.Sprintf("%s is %T, not an id", field.name, value)
		}
	case fieldArray:
		if _, ok := value.([]any); !ok {
			return fmt.Sprintf("%s is %T, not an array", field.name, value)
		}
	case fieldObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("%s is %T, not an object", field.name, value)
		}
	}

	return ""
}

var tagType = reflect.TypeOf(Tag{})

// tagFromString accepts bare strings where a tag object is expected.
func tagFromString(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != tagType || from.Kind() != reflect.String {
		return data, nil
	}
	return Tag{Name: reflect.ValueOf(data).String()}, nil
}
