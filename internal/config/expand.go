package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Variables substituted into bench.args.
const (
	VarRepetitions = "REPETITIONS"
	VarResultFile  = "RESULT_FILE"
)

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax - just ~ for the current user.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// ExpandCommand replaces ${NAME} in each argument with vars[NAME].
// Unknown variables are left as written.
func ExpandCommand(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = varPattern.ReplaceAllStringFunc(a, func(m string) string {
			if v, ok := vars[m[2:len(m)-1]]; ok {
				return v
			}
			return m
		})
	}
	return out
}

// BenchVars returns the substitution values for this config.
func (c *Config) BenchVars() map[string]string {
	return map[string]string{
		VarRepetitions: strconv.Itoa(c.Repetitions),
		VarResultFile:  c.Bench.ResultFile,
	}
}

// BenchCommand returns bench.args with variables substituted.
func (c *Config) BenchCommand() []string {
	return ExpandCommand(c.Bench.Args, c.BenchVars())
}

// unknownVars lists ${NAME} references in args that BenchVars doesn't define.
func unknownVars(args []string) []string {
	known := map[string]bool{VarRepetitions: true, VarResultFile: true}
	var unknown []string
	for _, a := range args {
		for _, m := range varPattern.FindAllStringSubmatch(a, -1) {
			if !known[m[1]] {
				unknown = append(unknown, m[0])
			}
		}
	}
	return unknown
}
