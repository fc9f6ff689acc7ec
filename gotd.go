// Package gotd holds the process-wide startup configuration of the
// gotd packages.
//
// All configuration is explicit: gotd reads no environment variables.
// A program that wants a non-default numerical backend or warning
// verbosity builds a Config and applies it once, before constructing
// any functions or learners.
package gotd

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Warnings is the writer that gotd packages report misuse warnings
// to. It defaults to standard error.
var Warnings io.Writer = os.Stderr

// Config describes the process-wide options of the gotd packages
type Config struct {
	// BLAS is the implementation that gonum routes float64 matrix
	// operations through. A nil BLAS leaves the current
	// implementation in place.
	BLAS blas.Float64

	// SuppressWarnings silences the warnings that gotd packages
	// write when used in a legal but probably unintended way
	SuppressWarnings bool
}

// NewConfig returns the default configuration: the current BLAS
// implementation and warnings written to standard error
func NewConfig() Config {
	return Config{}
}

// Apply installs the configuration. Apply should be called once at
// startup, before any other gotd call.
func (c Config) Apply() {
	if c.BLAS != nil {
		blas64.Use(c.BLAS)
	}

	if c.SuppressWarnings {
		Warnings = io.Discard
	} else {
		Warnings = os.Stderr
	}
}

// Warningf writes a misuse warning through the configured warning
// writer
func Warningf(format string, args ...interface{}) {
	fmt.Fprintf(Warnings, "Warning: "+format+"\n", args...)
}
