package orchestrator

import (
	"fmt"
	"time"
)

// printExitSummary prints a summary of the run to stdout.
func (o *Orchestrator) printExitSummary(runErr error) {
	elapsed := time.Since(o.startTime)
	snap := o.FrameSnapshot()

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Println("                      go-exposure-run Summary")
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("Run ID:            %s\n", o.run.ID)
	fmt.Printf("Run Directory:     %s\n", o.run.Dir)
	fmt.Printf("Final State:       %s\n", o.run.State())
	fmt.Printf("Wall Time:         %s\n", formatDuration(elapsed))
	fmt.Println()

	if snap.Count > 0 {
		fmt.Println("Frames:")
		fmt.Printf("  Captured:        %d\n", snap.Count)
		fmt.Printf("  Rate:            %.1f/s\n", snap.RatePerSec)
		if snap.IntervalP50 > 0 {
			fmt.Println("  Inter-frame interval:")
			fmt.Printf("    P50:           %s\n", snap.IntervalP50)
			fmt.Printf("    P95:           %s\n", snap.IntervalP95)
			fmt.Printf("    P99:           %s\n", snap.IntervalP99)
		}
		fmt.Println()
	}

	if len(o.stopReports) > 0 {
		fmt.Println("Shutdown:")
		for _, report := range o.stopReports {
			switch {
			case report.AlreadyDead:
				fmt.Printf("  %-8s already stopped\n", report.Role)
			case report.Killed:
				fmt.Printf("  %-8s %v, killed after %s\n", report.Role, report.SignalsSent, formatDuration(report.Elapsed))
			default:
				fmt.Printf("  %-8s %v in %s\n", report.Role, report.SignalsSent, formatDuration(report.Elapsed))
			}
		}
		fmt.Println()
	}

	if o.artifactPath != "" {
		fmt.Printf("Encoder Snapshot:  %s\n", o.artifactPath)
	}
	if runErr != nil {
		fmt.Printf("Failure:           %v\n", runErr)
		fmt.Println("The partial run directory is kept for postmortem.")
	}
	fmt.Println("═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
