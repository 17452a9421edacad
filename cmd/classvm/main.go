/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Command classvm is the CLI front-end: `classvm <entry.class> [<aux.class> ...]`.
// Grounded on saferwall-pe/cmd/pedumper.go and mabhi256-jdiag/cmd's cobra
// root-command shape, adapted to classvm's single-command surface.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacobin-classvm/classvm/internal/classtable"
	"github.com/jacobin-classvm/classvm/internal/interp"
	"github.com/jacobin-classvm/classvm/internal/trace"
)

var (
	libsDir    string
	traceLevel string
)

func run(cmd *cobra.Command, args []string) error {
	trace.SetLevel(parseTraceLevel(traceLevel))

	classes := classtable.New()

	if libsDir != "" {
		if err := classes.LoadDirectory(libsDir); err != nil {
			return fmt.Errorf("preloading --libs %s: %w", libsDir, err)
		}
	}

	var entryName string
	for i, path := range args {
		rc, err := classes.LoadFile(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		if i == 0 {
			entryName = rc.Name
		}
	}

	vm := interp.New(classes)
	if err := vm.Run(entryName); err != nil {
		return fmt.Errorf("running %s: %w", entryName, err)
	}
	return nil
}

func parseTraceLevel(s string) trace.Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return trace.TRACE
	case "FINE":
		return trace.FINE
	case "WARNING":
		return trace.WARNING
	case "SEVERE":
		return trace.SEVERE
	default:
		return trace.INFO
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "classvm <entry.class> [<aux.class>...]",
		Short: "A class-file virtual machine",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}
	rootCmd.Flags().StringVar(&libsDir, "libs", "", "directory of library class files to preload before the entry class")
	rootCmd.Flags().StringVar(&traceLevel, "trace", "INFO", "trace level: TRACE, FINE, INFO, WARNING, SEVERE")
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
