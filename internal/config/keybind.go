package config

import "strings"

// Keybind is a parsed modifier+key combination, e.g. "Ctrl+Shift+O".
type Keybind struct {
	Modifiers []string
	Key       string
}

// ParseKeybind splits a "+"-joined keybind string into modifiers and the
// trailing key. An empty string yields a zero-value Keybind.
func ParseKeybind(raw string) Keybind {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Keybind{}
	}

	parts := strings.Split(raw, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return Keybind{
		Modifiers: parts[:len(parts)-1],
		Key:       parts[len(parts)-1],
	}
}
