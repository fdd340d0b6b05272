package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// writeReport prints v to w as indented JSON or YAML
func writeReport(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q, must be json or yaml", format)
	}
}

func validateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "json", "yaml", "yml":
		return nil
	}
	return fmt.Errorf("unknown output format %q, must be json or yaml", format)
}
