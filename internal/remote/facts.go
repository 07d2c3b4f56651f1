package remote

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/rileyhilliard/pb/internal/errors"
)

// AffinityCore picks the CPU the benchmark is pinned to: three quarters of
// the way up the core list, clamped to the last core. Cores below 1 count
// as 1.
func AffinityCore(cores int) int {
	if cores < 1 {
		cores = 1
	}
	return min(cores*3/4, cores-1)
}

// ShortHostname drops the domain part of a fully qualified name.
func ShortHostname(raw string) string {
	name := strings.TrimSpace(raw)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}

// ParseCPUModel returns the first "model name" value from /proc/cpuinfo.
func ParseCPUModel(cpuinfo []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(cpuinfo))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "model name") {
			continue
		}
		if _, value, ok := strings.Cut(line, ": "); ok {
			return strings.TrimSpace(value), nil
		}
	}
	return "", errors.New(errors.ErrParse,
		"No 'model name' line in /proc/cpuinfo",
		"Hosts without a model name line (some ARM kernels) aren't supported yet.")
}

// ParsePowerProfile extracts the profile name from `tuned-adm active`
// output ("Current active profile: throughput-performance").
func ParsePowerProfile(out []byte) string {
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func parseCores(out []byte) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrParse,
			"Couldn't read the core count from getconf",
			"Check `getconf _NPROCESSORS_ONLN` works on the host.")
	}
	return n, nil
}
