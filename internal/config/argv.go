package config

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

// UnmarshalYAML reads a command from a YAML string scalar.
func (c *CommandConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: command must be a string", node.Line)
	}
	argv, err := parseArgv(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	c.Raw = strings.TrimSpace(raw)
	c.Argv = argv
	return nil
}

// MarshalYAML writes the raw command string.
func (c CommandConfig) MarshalYAML() (any, error) {
	return c.Raw, nil
}

func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	parser := shellwords.NewParser()
	argv, err := parser.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", input, err)
	}
	if len(argv) == 0 {
		return nil, nil
	}
	return argv, nil
}
