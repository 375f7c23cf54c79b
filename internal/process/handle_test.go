package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

// shCommand builds a /bin/sh -c command for subprocess tests.
func shCommand(script string) *exec.Cmd {
	return exec.CommandContext(context.Background(), "/bin/sh", "-c", script)
}

func TestStart_OutputAndExit(t *testing.T) {
	h, out, err := Start(RoleCapture, shCommand("echo hello; exit 3"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	data, _ := io.ReadAll(out)
	out.Close()

	if code := h.Wait(); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if !bytes.Contains(data, []byte("hello")) {
		t.Errorf("output = %q, want hello", data)
	}
}

func TestStart_CombinesStderr(t *testing.T) {
	h, out, err := Start(RoleCapture, shCommand("echo to-stdout; echo to-stderr 1>&2"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	data, _ := io.ReadAll(out)
	out.Close()
	h.Wait()

	if !bytes.Contains(data, []byte("to-stdout")) || !bytes.Contains(data, []byte("to-stderr")) {
		t.Errorf("combined output = %q", data)
	}
}

func TestStart_ExtraEnv(t *testing.T) {
	h, out, err := Start(RoleCapture, shCommand("echo gain=$GAIN"), []string{"GAIN=300"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	data, _ := io.ReadAll(out)
	out.Close()
	h.Wait()

	if !bytes.Contains(data, []byte("gain=300")) {
		t.Errorf("extra env not passed through: %q", data)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	cmd := exec.CommandContext(context.Background(), "/nonexistent/capture-continuous.out")
	_, _, err := Start(RoleCapture, cmd, nil)
	if err == nil {
		t.Fatal("expected launch error")
	}

	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("error type = %T, want *LaunchError", err)
	}
	if le.Name != "capture" {
		t.Errorf("LaunchError.Name = %q", le.Name)
	}
}

func TestHandle_Alive(t *testing.T) {
	h, out, err := Start(RoleLogger, shCommand("sleep 5"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer out.Close()

	if !h.Alive() {
		t.Error("freshly started process should be alive")
	}

	if err := h.Signal(syscall.SIGKILL); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	h.Wait()

	// Group teardown is not instantaneous under load
	deadline := time.Now().Add(2 * time.Second)
	for h.Alive() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.Alive() {
		t.Error("killed process group still reported alive")
	}
}

func TestHandle_SignalKillsWholeGroup(t *testing.T) {
	// The child spawns its own child; killing the group must take both.
	h, out, err := Start(RoleLogger, shCommand("sleep 30 & wait"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer out.Close()

	time.Sleep(100 * time.Millisecond)
	if err := h.Signal(syscall.SIGKILL); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Alive() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.Alive() {
		t.Error("descendant survived a group kill")
	}
}

func TestHandle_SignalAfterExit(t *testing.T) {
	h, out, err := Start(RoleCapture, shCommand("true"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	out.Close()
	h.Wait()

	// Give the kernel a moment to tear down the group
	time.Sleep(50 * time.Millisecond)

	err = h.Signal(syscall.SIGINT)
	if err == nil {
		t.Skip("process group still exists (pid reuse window)")
	}
	var se *SignalError
	if !errors.As(err, &se) {
		t.Errorf("error type = %T, want *SignalError", err)
	}
}

func TestHandle_SignalExitCode(t *testing.T) {
	h, out, err := Start(RoleCapture, shCommand("kill -TERM $$; sleep 5"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer out.Close()

	if code := h.Wait(); code != 128+int(syscall.SIGTERM) {
		t.Errorf("exit code = %d, want %d", code, 128+int(syscall.SIGTERM))
	}
}

func TestHandle_DoneAndWaitIdempotent(t *testing.T) {
	h, out, err := Start(RoleCapture, shCommand("exit 7"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer out.Close()

	<-h.Done()
	for i := 0; i < 3; i++ {
		if code := h.Wait(); code != 7 {
			t.Errorf("Wait() call %d = %d, want 7", i, code)
		}
	}
	if h.ExitCode() != 7 {
		t.Errorf("ExitCode() = %d, want 7", h.ExitCode())
	}
}

func TestRunToCompletion(t *testing.T) {
	var buf bytes.Buffer
	code, err := RunToCompletion("processing", shCommand("echo stage done; exit 2"), &buf, nil)
	if err != nil {
		t.Fatalf("RunToCompletion: %v", err)
	}
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !bytes.Contains(buf.Bytes(), []byte("stage done")) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunToCompletion_MissingBinary(t *testing.T) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(context.Background(), "/nonexistent/script.py")
	code, err := RunToCompletion("plotting", cmd, &buf, nil)
	if err == nil {
		t.Fatal("expected launch error")
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Errorf("error type = %T, want *LaunchError", err)
	}
}

func TestExtractExitCode(t *testing.T) {
	if extractExitCode(nil) != 0 {
		t.Error("nil error should be exit 0")
	}
	if extractExitCode(errors.New("random")) != 1 {
		t.Error("unknown error should be exit 1")
	}

	cmd := shCommand("exit 42")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	err := cmd.Run()
	if extractExitCode(err) != 42 {
		t.Errorf("extractExitCode = %d, want 42", extractExitCode(err))
	}
}
