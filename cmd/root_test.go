package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantOutput []string
		wantErr    bool
	}{
		{
			name:       "root command help",
			args:       []string{"--help"},
			wantOutput: []string{"sits between a browser WebSocket", "Available Commands:", "serve", "mcp"},
			wantErr:    false,
		},
		{
			name:       "root command without args",
			args:       []string{},
			wantOutput: []string{"sits between a browser WebSocket"},
			wantErr:    false,
		},
		{
			name:       "invalid command",
			args:       []string{"invalid"},
			wantOutput: []string{"unknown command"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)

			var buf bytes.Buffer
			rootCmd.SetOut(&buf)
			rootCmd.SetErr(&buf)

			err := rootCmd.Execute()

			if tt.wantErr && err == nil {
				t.Error("expected error but got nil")
			} else if !tt.wantErr && err != nil {
				t.Errorf("expected no error but got: %v", err)
			}

			output := buf.String()
			for _, expected := range tt.wantOutput {
				if !strings.Contains(output, expected) {
					t.Errorf("expected output to contain %q, got:\n%s", expected, output)
				}
			}
		})
	}
}

func TestExecuteFunctionDoesNotPanic(t *testing.T) {
	oldArgs := rootCmd.Commands()
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Execute() panicked: %v", r)
		}
		for _, c := range oldArgs {
			rootCmd.AddCommand(c)
		}
	}()

	rootCmd.SetArgs([]string{"--help"})
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	Execute()
}
