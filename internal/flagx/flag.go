// Package flagx helps the layered configuration loader parse its own flags
// without tripping over flags owned by other layers or registered by
// imported packages.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the subset of args belonging to the named flags, in
// their original order. Both the split form ("-f value") and the combined
// form ("--flag=value") are recognized. A token following a kept flag is
// treated as its value unless it starts with a dash.
func FilterArgs(args []string, flagNames []string) []string {
	allowed := make(map[string]struct{}, len(flagNames))
	for _, f := range flagNames {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// JsonConfigFlags reads the config-file path from the -c / -config flags on
// the real command line, ignoring every other argument. Returns an empty
// string when neither flag is present. When both are given, the later one
// wins.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "path to JSON config file")
	fs.StringVar(&config, "c", "", "path to JSON config file (shorthand)")
	_ = fs.Parse(args)

	return config
}
