// Package schema validates session configuration carried by Init messages.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"scribe-mcp-gateway/internal/mcp"
)

// Validator checks audio formats and transcription configs against their
// struct tag constraints.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateAudioFormat rejects formats the WAV converter cannot represent.
func (v *Validator) ValidateAudioFormat(f mcp.AudioFormat) error {
	return v.validate("audio_format", f)
}

// ValidateConfig rejects unusable transcription configs.
func (v *Validator) ValidateConfig(c mcp.TranscriptionConfig) error {
	return v.validate("config", c)
}

func (v *Validator) validate(name string, s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid %s: %s", name, strings.Join(fields, ", "))
}
