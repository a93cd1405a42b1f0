// Package sysinfo performs a configuration-time sanity check of the host's
// file descriptor headroom against the number of HTTP connections a run is
// about to open, so an operator sees a warning before a high-concurrency
// run starts failing requests with "too many open files" instead of after.
package sysinfo

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/compressa-ai/compressa-perf/internal/clientpool"
	"github.com/compressa-ai/compressa-perf/internal/config"
)

// CheckLimits estimates the number of concurrent connections a run with
// numRunners workers will open (clientpool's K pooled clients times
// MaxConnectionsPerClient) and compares it against the current process's
// open file descriptor count and soft limit. It returns a non-empty warning
// string when headroom is below config.MinFileDescriptorHeadroom times the
// expected connection count, or when the underlying gopsutil call fails
// (the caller has no FD limit visibility at all in that case). An empty
// string means the check passed or numRunners is non-positive.
func CheckLimits(numRunners int) string {
	if numRunners <= 0 {
		return ""
	}

	expectedConns := clientpool.ClampClientCount(numRunners) * clientpool.DefaultMaxConnectionsPerClient

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Sprintf("could not inspect process file descriptor usage: %v", err)
	}

	rlimits, err := proc.RlimitUsage(true)
	if err != nil {
		return fmt.Sprintf("could not read file descriptor rlimit: %v", err)
	}

	for _, r := range rlimits {
		if r.Resource != process.RLIMIT_NOFILE {
			continue
		}
		headroom := int64(r.Soft) - int64(r.Used)
		needed := int64(expectedConns) * int64(config.MinFileDescriptorHeadroom)
		if headroom < needed {
			return fmt.Sprintf(
				"open file descriptor headroom (%d) may be insufficient for an estimated %d connections with soft limit %d; consider raising ulimit -n",
				headroom, expectedConns, r.Soft)
		}
		return ""
	}

	return "could not locate RLIMIT_NOFILE entry in process rlimit usage"
}
