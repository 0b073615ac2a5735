package helpers

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	// SuccessColor for successful operations
	SuccessColor = color.New(color.FgGreen, color.Bold)

	// ErrorColor for error messages
	ErrorColor = color.New(color.FgRed, color.Bold)

	// WarningColor for warning messages
	WarningColor = color.New(color.FgYellow, color.Bold)

	// InfoColor for informational messages
	InfoColor = color.New(color.FgCyan)

	// TitleColor for titles and headers
	TitleColor = color.New(color.FgMagenta, color.Bold)
)

// Output receives all console messages; errors go to ErrOutput
var (
	Output    io.Writer = color.Output
	ErrOutput io.Writer = color.Error
)

// SetOutput redirects console messages, e.g. to a buffer in tests
func SetOutput(out, errOut io.Writer) {
	Output = out
	ErrOutput = errOut
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	SuccessColor.Fprintf(Output, "✅ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	ErrorColor.Fprintf(ErrOutput, "❌ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	WarningColor.Fprintf(Output, "⚠️  "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	InfoColor.Fprintf(Output, "ℹ️  "+format+"\n", args...)
}

// PrintTitle prints a title
func PrintTitle(format string, args ...interface{}) {
	TitleColor.Fprintf(Output, "🎯 "+format+"\n", args...)
}

// PrintField prints an aligned label/value pair
func PrintField(label string, value interface{}) {
	fmt.Fprintf(Output, "   %-16s %v\n", label+":", value)
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Fprintln(Output, strings.Repeat("─", 80))
}

// IsTerminal checks if output is going to a terminal
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
