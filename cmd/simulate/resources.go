package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// printResources reports what the simulation cost this process. Failures
// are printed instead of returned since the summary is already out.
func printResources(out io.Writer) {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits int32
	if err != nil {
		fmt.Fprintf(out, "process stats unavailable: %v\n", err)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		fmt.Fprintf(out, "process memory unavailable: %v\n", err)
		return
	}
	times, err := proc.Times()
	if err != nil {
		fmt.Fprintf(out, "process cpu time unavailable: %v\n", err)
		return
	}

	fmt.Fprintf(out, "process: %d MiB resident, %.2fs user, %.2fs system\n",
		memInfo.RSS/1024/1024, times.User, times.System)
}
