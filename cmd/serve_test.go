package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestServeCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantOutput []string
		wantErr    bool
	}{
		{
			name:       "serve command help",
			args:       []string{"serve", "--help"},
			wantOutput: []string{"Start the RCON bridge", "--protocol", "--listen-addr", "--log-level"},
			wantErr:    false,
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

func TestServeCommandStructure(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Use == "serve" {
			found = true
			if c.Short == "" {
				t.Error("expected serve command to have a short description")
			}
			if c.Long == "" {
				t.Error("expected serve command to have a long description")
			}
			if c.RunE == nil {
				t.Error("expected serve command to have a RunE function")
			}
			if c.Flags().Lookup("host") == nil {
				t.Error("expected serve command to register --host")
			}
			break
		}
	}
	if !found {
		t.Error("serve command not found in root command")
	}
}
