// Package flagx lets several components parse their own flags out of a
// shared argument list without failing on flags they do not know about.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// flagName strips leading dashes: "-c", "--c" and "c" all name the flag "c".
func flagName(arg string) string {
	return strings.TrimLeft(arg, "-")
}

// FilterArgs returns the subset of args that belongs to allowedFlags, keeping
// values that follow a flag as a separate argument.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// Single- and double-dash spellings are equivalent, as in package flag.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[flagName(f)] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		if name, _, ok := strings.Cut(arg, "="); ok {
			if _, ok := allowed[flagName(name)]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[flagName(arg)]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ParseFiltered parses into fs only the arguments naming flags defined on fs.
func ParseFiltered(fs *flag.FlagSet, args []string) error {
	var names []string
	fs.VisitAll(func(f *flag.Flag) {
		names = append(names, f.Name)
	})
	return fs.Parse(FilterArgs(args, names))
}

// JsonConfigFlags returns the config file path given with -c or -config, or
// an empty string when neither is present.
func JsonConfigFlags() string {
	var config string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = ParseFiltered(fs, os.Args[1:])

	return config
}
