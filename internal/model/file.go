package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadParamsFile overlays the YAML document at path onto p. Keys missing from the file
// leave p untouched; unknown keys are rejected.
func LoadParamsFile(path string, p *Params) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read params file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse params file %s: %w", path, err)
	}
	return nil
}
