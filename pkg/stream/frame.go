package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Frame kinds carried on the live stream.
const (
	FrameConnected = "connected"
	FrameLog       = "log"
)

// Frame is one JSON frame from the live endpoint. "connected" frames
// are informational acknowledgements; "log" frames carry one record in
// Data.
type Frame struct {
	Type      string          `json:"type"      jsonschema:"enum=connected,enum=log"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// printer renders validation errors in English for debug logs.
var printer = message.NewPrinter(language.English)

var compileFrameSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	reflector := invopop.Reflector{DoNotReference: true}
	reflected := reflector.Reflect(&Frame{})
	// Data holds an arbitrary record object; the reflected form of
	// json.RawMessage is too narrow.
	reflected.Properties.Set("data", &invopop.Schema{Type: "object"})

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("marshaling frame schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling frame schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("frame.json", doc); err != nil {
		return nil, fmt.Errorf("adding frame schema resource: %w", err)
	}
	compiled, err := compiler.Compile("frame.json")
	if err != nil {
		return nil, fmt.Errorf("compiling frame schema: %w", err)
	}
	return compiled, nil
})

// decodeFrame validates and decodes one inbound frame. Any failure
// means the frame is dropped by the caller; it never affects the
// connection.
func decodeFrame(data []byte) (Frame, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return Frame{}, fmt.Errorf("invalid JSON frame: %w", err)
	}

	schema, err := compileFrameSchema()
	if err != nil {
		// Compile failure is a programmer error; surface it once per
		// process at warn and fall through to plain decoding.
		slog.Warn("frame schema unavailable", slog.String("error", err.Error()))
	} else if err := schema.Validate(value); err != nil {
		return Frame{}, fmt.Errorf("frame failed validation: %s", validationSummary(err))
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return frame, nil
}

// validationSummary flattens a validation error into one readable line.
func validationSummary(err error) string {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return err.Error()
	}
	var msgs []string
	collectLeaves(validationErr, &msgs)
	if len(msgs) == 0 {
		return err.Error()
	}
	return strings.Join(msgs, "; ")
}

func collectLeaves(err *jsonschema.ValidationError, out *[]string) {
	if err.ErrorKind != nil && len(err.Causes) == 0 {
		msg := err.ErrorKind.LocalizedString(printer)
		if len(err.InstanceLocation) > 0 {
			msg = "/" + strings.Join(err.InstanceLocation, "/") + ": " + msg
		}
		*out = append(*out, msg)
	}
	for _, cause := range err.Causes {
		collectLeaves(cause, out)
	}
}
