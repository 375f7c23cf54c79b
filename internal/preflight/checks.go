// Package preflight provides startup validation checks.
//
// All checks run before any run directory is created: a missing
// collaborator aborts the process with exit code 1 and leaves no trace
// on disk.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Inputs names everything the supervisor needs on disk before launching.
type Inputs struct {
	CaptureBin        string
	Python            string
	MotorLoggerScript string
	ProcessorScript   string
	PlotterScript     string
	GroundPath        string
}

// RunAll executes all preflight checks.
func RunAll(in Inputs) *Result {
	result := &Result{
		Checks: make([]Check, 0, 6),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkExecutable("capture_binary", in.CaptureBin))
	add(checkPython(in.Python))
	add(checkScript("motor_logger_script", in.MotorLoggerScript))
	add(checkScript("processor_script", in.ProcessorScript))
	add(checkScript("plotter_script", in.PlotterScript))
	add(checkGroundPath(in.GroundPath))

	return result
}

// checkExecutable verifies a binary exists and is executable.
func checkExecutable(name, path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s", path),
		}
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s is not executable", path),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkPython verifies the interpreter resolves on PATH (or as a path).
func checkPython(python string) Check {
	path, err := exec.LookPath(python)
	if err != nil {
		return Check{
			Name:    "python",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", python, err),
		}
	}
	return Check{
		Name:    "python",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkScript verifies a collaborator script exists.
func checkScript(name, path string) Check {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s", path),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkGroundPath verifies the ground base path exists and is writable,
// since the run directory and encoder snapshots live under it.
func checkGroundPath(path string) Check {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return Check{
			Name:    "ground_path",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	probe, err := os.CreateTemp(path, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "ground_path",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", path, err),
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	return Check{
		Name:    "ground_path",
		Passed:  true,
		Message: fmt.Sprintf("%s is writable", path),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "capture_binary":
		return "build the capture binary (make -C camera) or pass -capture-bin"
	case "python":
		return "install python3 or pass -python"
	case "ground_path":
		return "pass -ground-path pointing at the ground repo checkout"
	default:
		return "check -ground-path, the script ships with the ground repo"
	}
}
