package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ErrUnsupportedOS indicates the current OS has no detached-start recipe.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// StartDetached launches an executable so it survives the caller's exit:
// - Linux/macOS: plain Start without waiting,
// - Windows:     `cmd.exe /C start` so no console handle is inherited.
// dir becomes the working directory of the child when non-empty.
// The child is deliberately not bound to any context: the caller is about
// to exit, and a cancellation-driven kill would defeat the handoff.
func StartDetached(dir, executable string, args ...string) error {
	osName := strings.ToLower(runtime.GOOS)

	var cmd *exec.Cmd

	switch {
	case strings.Contains(osName, "linux") || strings.Contains(osName, "darwin"):
		cmd = exec.Command(executable, args...)
	case strings.Contains(osName, "windows"):
		startArgs := append([]string{"/C", "start", "", executable}, args...)
		cmd = exec.Command("cmd.exe", startArgs...)
	default:
		return fmt.Errorf("%s: %w", runtime.GOOS, ErrUnsupportedOS)
	}

	cmd.Dir = dir

	return cmd.Start()
}

// IsRunning reports whether a process with the given executable name is
// running, ignoring the calling process itself.
func IsRunning(processName string) (bool, error) {
	processList, err := ps.Processes()
	if err != nil {
		return false, err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == processName {
			return true, nil
		}
	}

	return false, nil
}

// TerminateByName kills every process with the provided executable name,
// skipping the calling process.
func TerminateByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}
