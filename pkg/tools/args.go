package tools

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

var errBadArgs = errors.New("invalid arguments")

// decodeArgs maps loosely typed arguments (JSON numbers as float64, numeric
// strings) onto a typed struct. Unknown keys are rejected and string values
// are sanitized.
func decodeArgs(args map[string]any, out any) error {
	if len(args) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		DecodeHook:       sanitizeHook(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("%w: %v", errBadArgs, err)
	}
	return nil
}

type orderArgs struct {
	Item            string   `mapstructure:"item"`
	Quantity        int      `mapstructure:"quantity"`
	Modifiers       []string `mapstructure:"modifiers"`
	ExpectedVersion *int64   `mapstructure:"expected_version"`
}

type tipArgs struct {
	Percentage *int `mapstructure:"percentage"`
}

type paymentArgs struct {
	Description string `mapstructure:"description"`
}

type checkArgs struct {
	TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
}

type turnArgs struct {
	Event string `mapstructure:"event"`
}
