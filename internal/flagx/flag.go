// Package flagx helps several independent loaders share one command line.
// Each loader filters os.Args down to the flags it owns before handing them
// to its own flag.FlagSet, so unknown flags never abort parsing.
package flagx

import (
	"flag"
	"io"
	"slices"
	"strings"
)

// FilterArgs returns the subset of args made of allowed flags and their
// values, preserving order. Both "-f value" and "-f=value" forms are
// recognised; a token starting with '-' is never taken as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		if name, _, hasValue := strings.Cut(arg, "="); hasValue {
			if slices.Contains(allowedFlags, name) {
				filtered = append(filtered, arg)
			}
			continue
		}

		if !slices.Contains(allowedFlags, arg) {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigFileFlag extracts the configuration file path given with -c or
// -config. When both appear, the last one wins. Returns "" if neither is set.
func ConfigFileFlag(args []string) string {
	var path string

	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	return path
}
