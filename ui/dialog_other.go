//go:build !windows

package ui

import (
	"fmt"
	"os"
)

// ShowError prints the error to stderr.
func ShowError(title, msg string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, msg)
}
