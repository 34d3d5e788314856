package errors

import (
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display.
// Non-AmanError values are wrapped as internal errors.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ae, ok := As(err)
	if !ok {
		ae = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ae.Message)
	if d := ae.DetailString(); d != "" {
		fmt.Fprintf(&sb, "  %s\n", d)
	}
	if ae.Suggestion != "" {
		fmt.Fprintf(&sb, "  Suggestion: %s\n", ae.Suggestion)
	}
	fmt.Fprintf(&sb, "  [%s]", ae.Code)
	return sb.String()
}

// LineageNote renders an error for the notes column of an ingest event.
func LineageNote(err error) string {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return fmt.Sprintf("error: %s %s", ae.Code, ae.Message)
	}
	return "error: " + err.Error()
}
