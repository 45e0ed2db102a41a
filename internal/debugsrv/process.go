package debugsrv

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is the body of a PS response.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSS        uint64  `json:"rss"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// CollectProcessStats samples the current process.
func CollectProcessStats() (ProcessStats, error) {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return ProcessStats{}, err
	}

	mem, err := p.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return ProcessStats{}, err
	}

	return ProcessStats{
		PID:        pid,
		RSS:        mem.RSS,
		CPUPercent: cpu,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}
