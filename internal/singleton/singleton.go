// Package singleton detects other running instances of the listener, so two
// processes never drive the same relays.
package singleton

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// Lister returns the running processes. ps.Processes satisfies it.
type Lister func() ([]ps.Process, error)

// Others returns the PIDs of processes other than this one whose executable
// name is name.
func Others(list Lister, name string) ([]int, error) {
	processList, err := list()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	var pids []int
	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}
		if process.Executable() != name {
			continue
		}
		pids = append(pids, process.Pid())
	}
	return pids, nil
}

// Running returns the PIDs of other instances of the current executable.
func Running() ([]int, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return Others(ps.Processes, executableName(exe))
}

// executableName returns the name as the process table reports it; Linux
// truncates it to 15 bytes.
func executableName(path string) string {
	name := filepath.Base(path)
	if len(name) > 15 {
		name = name[:15]
	}
	return name
}
