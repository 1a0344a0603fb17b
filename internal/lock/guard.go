// Package lock prevents two vaultd servers from serving the same vault.
//
// A second server writing the same task files would race the first one's
// atomic writes, so the serve command takes a PID guard on startup. Stale
// guards from crashed servers are reclaimed automatically.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"vaultd/internal/errors"
)

// PIDFileName is the guard file inside the vault's config directory.
const PIDFileName = "vaultd.pid"

// Guard is a per-vault PID file guard.
type Guard struct {
	dir string
}

// NewGuard creates a guard rooted at the vault's config directory.
func NewGuard(configDir string) *Guard {
	return &Guard{dir: configDir}
}

func (g *Guard) pidPath() string {
	return filepath.Join(g.dir, PIDFileName)
}

// Acquire claims the vault for this process. It fails with CodeVaultLocked
// when another live vaultd holds the guard; stale and malformed guard files
// are removed and reclaimed.
func (g *Guard) Acquire() error {
	if err := g.check(); err != nil {
		return err
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return errors.Wrap(errors.CodeIOFailed, "create config directory", err)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(g.pidPath(), []byte(pid+"\n"), 0o644); err != nil {
		return errors.Wrap(errors.CodeIOFailed, "write pid guard", err)
	}
	return nil
}

// Release removes the guard. Safe to call when no guard exists.
func (g *Guard) Release() {
	os.Remove(g.pidPath())
}

// Holder returns the PID of the live guard holder, or 0 when the vault is
// free.
func (g *Guard) Holder() int {
	pid, ok := g.readPID()
	if ok && processExists(pid) {
		return pid
	}
	return 0
}

func (g *Guard) check() error {
	pid, ok := g.readPID()
	if !ok {
		return nil
	}
	if processExists(pid) {
		return errors.New(errors.CodeVaultLocked,
			fmt.Sprintf("vault already served by pid %d", pid)).
			WithWhy("only one vaultd may write a vault at a time").
			WithFix("stop the other server or remove " + g.pidPath())
	}
	// Stale guard from a dead process.
	os.Remove(g.pidPath())
	return nil
}

// readPID returns the recorded PID, or ok=false when the guard file is
// missing or malformed. Malformed files are deleted.
func (g *Guard) readPID() (int, bool) {
	data, err := os.ReadFile(g.pidPath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		os.Remove(g.pidPath())
		return 0, false
	}
	return pid, true
}

func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes liveness.
	return process.Signal(syscall.Signal(0)) == nil
}
