package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
}

// encode writes v as JSON or YAML. It returns false for the text format so
// the caller can render its own view.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

// emit encodes v to stdout for structured formats.
func emit(format string, v any) (bool, error) {
	done, err := encode(os.Stdout, format, v)
	if err != nil {
		return true, fmt.Errorf("failed to write output: %w", err)
	}
	return done, nil
}

// num formats a quantity or price without trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// money formats an amount with two decimals.
func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// orDash returns s, or "-" when s is blank.
func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
