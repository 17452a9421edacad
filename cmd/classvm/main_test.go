/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package main

import (
	"testing"

	"github.com/jacobin-classvm/classvm/internal/trace"
)

func TestParseTraceLevelRecognizesEachName(t *testing.T) {
	cases := map[string]trace.Level{
		"TRACE":   trace.TRACE,
		"trace":   trace.TRACE,
		"FINE":    trace.FINE,
		"INFO":    trace.INFO,
		"WARNING": trace.WARNING,
		"SEVERE":  trace.SEVERE,
		"bogus":   trace.INFO,
		"":        trace.INFO,
	}
	for in, want := range cases {
		if got := parseTraceLevel(in); got != want {
			t.Errorf("parseTraceLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRootCmdRequiresAtLeastOneClassArg(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error when no class file is given")
	}
}

func TestRunReportsLoadFailureForMissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"/nonexistent/NoSuchClass.class"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error when the entry class file does not exist")
	}
}

func TestRunReportsPreloadFailureForMissingLibsDir(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--libs", "/nonexistent/dir", "/nonexistent/NoSuchClass.class"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error when --libs names a missing directory")
	}
}
