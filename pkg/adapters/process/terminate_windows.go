//go:build windows

package process

import "os"

// Windows has no SIGTERM for console-less children; kill outright.
func terminate(p *os.Process) error {
	return p.Kill()
}
