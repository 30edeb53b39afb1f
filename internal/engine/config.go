// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"strings"

	"passthru/internal/dsp"

	"github.com/go-playground/validator/v10"
)

const (
	MaxGain     float32 = 2
	DefaultGain float32 = 1
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds the tunable processing parameters. Gain and GateThreshold
// are applied to a live graph in place; GateEnabled and MeteringEnabled
// change the graph topology and force a rebuild.
type Config struct {
	Gain            float32 `yaml:"gain" validate:"gte=0,lte=2"`
	GateEnabled     bool    `yaml:"gate"`
	GateThreshold   float32 `yaml:"gate_threshold" validate:"gte=0,lte=0.1"`
	MeteringEnabled bool    `yaml:"metering"`
}

// DefaultConfig returns unity gain with the gate off and metering on.
func DefaultConfig() Config {
	return Config{
		Gain:            DefaultGain,
		GateThreshold:   dsp.DefaultGateThreshold,
		MeteringEnabled: true,
	}
}

// Validate reports the first out-of-range field. The returned error wraps
// validator.ValidationErrors.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), validationMessage(fe)))
	}
	return fmt.Errorf("invalid engine config: %s: %w", strings.Join(msgs, ", "), err)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	default:
		return fmt.Sprintf("failed validation '%s'", fe.Tag())
	}
}

func (c Config) topologyChanged(o Config) bool {
	return c.GateEnabled != o.GateEnabled || c.MeteringEnabled != o.MeteringEnabled
}
