package main

import (
	"sync"

	"github.com/spf13/cobra"
)

// structuredLogAnnotation marks commands whose output is structured log
// lines; the fatal-error path in main.go mirrors that format so the last
// line a failed process emits is machine-readable too.
const structuredLogAnnotation = "logging"

// commandExecutionContext records which command is running so error
// reporting on the way out of main can match the command's output style.
type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	execContextMu sync.Mutex
	execContext   commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	execContextMu.Lock()
	defer execContextMu.Unlock()
	execContext = ctx
}

func currentCommandExecutionContext() commandExecutionContext {
	execContextMu.Lock()
	defer execContextMu.Unlock()
	return execContext
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	return cmd.Annotations[structuredLogAnnotation] == "structured"
}

func structuredLogging() map[string]string {
	return map[string]string{structuredLogAnnotation: "structured"}
}
