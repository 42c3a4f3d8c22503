package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Source describes how to load a secret value.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name string
	// Value is an inline secret value provided via configuration or flags.
	Value string
	// File points to a file containing the secret value. When set it takes
	// precedence over Value.
	File string
	// Env names an environment variable consulted when neither File nor Value is set.
	Env string
	// Field, when set, picks a string field out of a JSON object secret, such as
	// "access_token" in a saved login response. Plain secrets are returned as is.
	Field string
}

// Load returns the resolved secret value from the provided source.
// Precedence is File, then Value, then Env. The returned secret is always trimmed.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		src.Value = string(data)
		src.File = file
	}

	if strings.TrimSpace(src.Value) == "" && src.File == "" && src.Env != "" {
		src.Value = os.Getenv(src.Env)
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		if src.File != "" {
			return "", fmt.Errorf("%s file %q is empty", name, src.File)
		}
		return "", fmt.Errorf("%s is not configured", name)
	}

	if src.Field != "" && strings.HasPrefix(secret, "{") {
		return extractField(name, secret, src.Field)
	}

	return secret, nil
}

func extractField(name, secret, field string) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(secret), &doc); err != nil {
		return "", fmt.Errorf("parsing %s as json: %w", name, err)
	}

	value, _ := doc[field].(string)
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s has no %q field", name, field)
	}
	return value, nil
}
