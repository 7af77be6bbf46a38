package provider

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	chunkJSON   = []byte(`{"type":"chunk"}`)
	finalJSON   = []byte(`{"type":"final"}`)
	failureJSON = []byte(`{"type":"error"}`)
)

// StreamEvent is a value produced by Provider.Stream.
type StreamEvent interface {
	streamEvent()
}

// Chunk carries a partial, prefix-consistent output.
type Chunk struct {
	RunID     uuid.UUID        `json:"run_id"`
	Output    StructuredOutput `json:"output"`
	Timestamp strfmt.DateTime  `json:"timestamp,omitempty"`
}

func (Chunk) streamEvent() {}

// Final carries the validated output of a stream together with its usage.
type Final struct {
	RunID     uuid.UUID        `json:"run_id"`
	Output    StructuredOutput `json:"output"`
	Usage     *Usage           `json:"usage,omitempty"`
	Timestamp strfmt.DateTime  `json:"timestamp,omitempty"`
}

func (Final) streamEvent() {}

// Failure ends a stream that could not complete.
type Failure struct {
	RunID     uuid.UUID       `json:"run_id"`
	Err       error           `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Failure) streamEvent() {}

func (f Failure) Error() string {
	return fmt.Sprintf("run_id: %s, timestamp: %s, error: %v", f.RunID, f.Timestamp, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// MarshalJSON implements custom JSON marshaling for Chunk
func (c Chunk) MarshalJSON() ([]byte, error) {
	return marshalOutputEvent(chunkJSON, c.RunID, c.Output, nil, c.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Chunk
func (c *Chunk) UnmarshalJSON(data []byte) error {
	runID, output, _, ts, err := unmarshalOutputEvent(data, "chunk")
	if err != nil {
		return err
	}
	c.RunID, c.Output, c.Timestamp = runID, output, ts
	return nil
}

// MarshalJSON implements custom JSON marshaling for Final
func (f Final) MarshalJSON() ([]byte, error) {
	return marshalOutputEvent(finalJSON, f.RunID, f.Output, f.Usage, f.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Final
func (f *Final) UnmarshalJSON(data []byte) error {
	runID, output, usage, ts, err := unmarshalOutputEvent(data, "final")
	if err != nil {
		return err
	}
	f.RunID, f.Output, f.Usage, f.Timestamp = runID, output, usage, ts
	return nil
}

// MarshalJSON implements custom JSON marshaling for Failure. Typed errors keep
// their kind and decisions, other errors are reduced to their message.
func (f Failure) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(failureJSON, "run_id", f.RunID.String())
	if err != nil {
		return nil, err
	}

	var errBytes []byte
	if pe, ok := AsError(f.Err); ok {
		errBytes, err = json.Marshal(pe)
	} else if f.Err != nil {
		errBytes, err = json.Marshal(map[string]string{"message": f.Err.Error()})
	} else {
		errBytes = []byte(`null`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error: %w", err)
	}
	if result, err = sjson.SetRawBytes(result, "error", errBytes); err != nil {
		return nil, err
	}

	if !f.Timestamp.IsZero() {
		if result, err = sjson.SetBytes(result, "timestamp", f.Timestamp.String()); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Failure
func (f *Failure) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	if tpe := gjson.GetBytes(data, "type"); tpe.String() != "error" {
		return fmt.Errorf("missing or invalid type, expected 'error'")
	}
	if err := parseRunID(data, &f.RunID); err != nil {
		return err
	}

	errField := gjson.GetBytes(data, "error")
	switch {
	case errField.Get("kind").Exists():
		var pe Error
		if err := json.Unmarshal([]byte(errField.Raw), &pe); err != nil {
			return fmt.Errorf("invalid error: %w", err)
		}
		f.Err = &pe
	case errField.Get("message").Exists():
		f.Err = errors.New(errField.Get("message").String())
	default:
		f.Err = nil
	}

	if ts := gjson.GetBytes(data, "timestamp"); ts.Exists() {
		if err := f.Timestamp.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// EventFromJSON decodes any stream event from its JSON form.
func EventFromJSON(data []byte) (StreamEvent, error) {
	switch tpe := gjson.GetBytes(data, "type").String(); tpe {
	case "chunk":
		var c Chunk
		err := c.UnmarshalJSON(data)
		return c, err
	case "final":
		var f Final
		err := f.UnmarshalJSON(data)
		return f, err
	case "error":
		var f Failure
		err := f.UnmarshalJSON(data)
		return f, err
	default:
		return nil, fmt.Errorf("unknown event type %q", tpe)
	}
}

func marshalOutputEvent(base []byte, runID uuid.UUID, output StructuredOutput, usage *Usage, ts strfmt.DateTime) ([]byte, error) {
	result, err := sjson.SetBytes(base, "run_id", runID.String())
	if err != nil {
		return nil, err
	}

	outputBytes, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	if result, err = sjson.SetRawBytes(result, "output", outputBytes); err != nil {
		return nil, err
	}

	if usage != nil {
		usageBytes, err := json.Marshal(usage)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal usage: %w", err)
		}
		if result, err = sjson.SetRawBytes(result, "usage", usageBytes); err != nil {
			return nil, err
		}
	}

	if !ts.IsZero() {
		if result, err = sjson.SetBytes(result, "timestamp", ts.String()); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func unmarshalOutputEvent(data []byte, expected string) (uuid.UUID, StructuredOutput, *Usage, strfmt.DateTime, error) {
	var (
		runID  uuid.UUID
		output StructuredOutput
		usage  *Usage
		ts     strfmt.DateTime
	)
	if !gjson.ValidBytes(data) {
		return runID, output, usage, ts, fmt.Errorf("invalid json: %s", data)
	}
	if tpe := gjson.GetBytes(data, "type"); tpe.String() != expected {
		return runID, output, usage, ts, fmt.Errorf("missing or invalid type, expected '%s'", expected)
	}
	if err := parseRunID(data, &runID); err != nil {
		return runID, output, usage, ts, err
	}

	out := gjson.GetBytes(data, "output")
	if !out.Exists() {
		return runID, output, usage, ts, fmt.Errorf("missing required field 'output'")
	}
	if err := json.Unmarshal([]byte(out.Raw), &output); err != nil {
		return runID, output, usage, ts, fmt.Errorf("invalid output: %w", err)
	}

	if u := gjson.GetBytes(data, "usage"); u.Exists() && u.IsObject() {
		usage = &Usage{}
		if err := json.Unmarshal([]byte(u.Raw), usage); err != nil {
			return runID, output, usage, ts, fmt.Errorf("invalid usage: %w", err)
		}
	}

	if t := gjson.GetBytes(data, "timestamp"); t.Exists() {
		if err := ts.UnmarshalText([]byte(t.String())); err != nil {
			return runID, output, usage, ts, fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return runID, output, usage, ts, nil
}

func parseRunID(data []byte, dst *uuid.UUID) error {
	runID := gjson.GetBytes(data, "run_id")
	if !runID.Exists() {
		return fmt.Errorf("missing required field 'run_id'")
	}
	if err := dst.UnmarshalText([]byte(runID.String())); err != nil {
		return fmt.Errorf("invalid run_id: %w", err)
	}
	return nil
}
