package cmd

import "testing"

func TestRegisteredCommands(t *testing.T) {
	t.Parallel()

	want := map[string]bool{
		"serve":    false,
		"chat":     false,
		"index":    false,
		"mcp":      false,
		"sessions": false,
		"version":  false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("command %q is not registered on the root command", name)
		}
	}
}

func TestNewLogger(t *testing.T) {
	orig := logLevel
	defer func() { logLevel = orig }()

	logLevel = "debug"
	if _, err := newLogger(); err != nil {
		t.Errorf("newLogger with level debug: %v", err)
	}

	logLevel = "verbose"
	if _, err := newLogger(); err == nil {
		t.Error("newLogger accepted unknown level")
	}
}
