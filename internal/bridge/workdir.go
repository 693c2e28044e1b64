package bridge

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/halcyon-imaging/bartbridge/internal/security"
)

// prepareScript verifies the command script exists inside the script
// directory and makes it executable for the engine subprocess.
func prepareScript(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no script name configured", ErrConfigMissing)
	}
	path := filepath.Join(dir, name)
	if err := security.WithinDirectory(path, dir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: command script %s", ErrConfigMissing, path)
	}
	if err := os.Chmod(path, 0777); err != nil {
		return "", fmt.Errorf("%w: chmod %s: %v", ErrPermissionDenied, path, err)
	}
	return path, nil
}

// makeWorkDir creates a uniquely named directory for one run's generated
// files under the configured root: bart_<HH_MM_SS__><dice>_<pid>.
func makeWorkDir(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: no working directory configured", ErrConfigMissing)
	}
	name := fmt.Sprintf("bart_%s%d_%d", time.Now().Format("15_04_05__"), rand.Intn(10000)+1, os.Getpid())
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrPermissionDenied, dir, err)
	}
	diagf("working directory %s", dir)
	return dir, nil
}

// mountTmpfs overlays dir with a size-capped tmpfs so engine file traffic
// stays in memory. Needs privilege; callers treat failure as fatal.
func mountTmpfs(dir string, sizeMB int) error {
	opt := fmt.Sprintf("size=%dM,mode=0755", sizeMB)
	out, err := exec.Command("mount", "-t", "tmpfs", "-o", opt, "tmpfs", dir).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: mount tmpfs on %s: %v (%s)", ErrPermissionDenied, dir, err, bytes.TrimSpace(out))
	}
	opsf("mounted %dM tmpfs on %s", sizeMB, dir)
	return nil
}
