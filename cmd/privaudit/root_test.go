package main

import (
	"testing"

	"github.com/privaudit/privaudit/internal/collectors"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"audit", "serve", "services", "version"} {
		if cmd, _, err := rootCmd.Find([]string{name}); err != nil || cmd == nil || cmd.Name() != name {
			t.Fatalf("%s command not registered: cmd=%v err=%v", name, cmd, err)
		}
	}
}

func TestCommandUsesStructuredLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "audit", args: []string{"audit"}, want: true},
		{name: "serve", args: []string{"serve"}, want: true},
		{name: "services", args: []string{"services"}, want: false},
		{name: "version", args: []string{"version"}, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd, _, err := rootCmd.Find(tc.args)
			if err != nil {
				t.Fatalf("Find(%v) error = %v", tc.args, err)
			}
			if cmd == nil {
				t.Fatalf("Find(%v) returned nil command", tc.args)
			}

			if got := commandUsesStructuredLogging(cmd); got != tc.want {
				t.Fatalf("commandUsesStructuredLogging(%q) = %v, want %v", cmd.CommandPath(), got, tc.want)
			}
		})
	}
}

func TestServicesForKinds(t *testing.T) {
	t.Parallel()

	reg := collectors.Default()

	services, err := servicesForKinds(reg, []string{"exchange", "AzureAD"})
	if err != nil {
		t.Fatalf("servicesForKinds() error = %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("len(services) = %d, want 2", len(services))
	}

	if _, err := servicesForKinds(reg, []string{"nope"}); err == nil {
		t.Fatal("expected error for unknown service kind")
	}

	services, err = servicesForKinds(reg, nil)
	if err != nil {
		t.Fatalf("servicesForKinds(nil) error = %v", err)
	}
	if services != nil {
		t.Fatalf("servicesForKinds(nil) = %v, want nil", services)
	}
}
