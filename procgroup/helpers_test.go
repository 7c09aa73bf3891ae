package procgroup

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// buildFakeBackend compiles test-service/fakebackend into a temp dir.
func buildFakeBackend(t *testing.T, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	out := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", out, "../test-service/fakebackend")
	b, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", fmt.Sprint(err), string(b))
	}
	return out
}
