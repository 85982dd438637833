package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// maskSecret hides all but the edges of a credential.
func maskSecret(value string) string {
	switch {
	case value == "":
		return "(unset)"
	case len(value) <= 8:
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// parseEnvLine splits a KEY=VALUE line. ok is false for blanks and comments.
func parseEnvLine(line string) (key, value string, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false, nil
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false, fmt.Errorf("expected KEY=VALUE, got %q", line)
	}
	value = strings.TrimSpace(value)
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		value = value[1 : n-1]
	}
	return key, value, true, nil
}

// LoadEnvFile exports the variables of a dotenv style file into the process
// environment so BANNERBUILDR_* overrides can live next to the binary.
// Existing variables are overwritten.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for n := 1; scanner.Scan(); n++ {
		key, value, ok, err := parseEnvLine(scanner.Text())
		if err != nil {
			return fmt.Errorf("%s:%d: %w", filename, n, err)
		}
		if !ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return scanner.Err()
}
