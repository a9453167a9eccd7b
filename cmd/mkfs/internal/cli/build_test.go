package cli

import (
	"os"
	"path/filepath"
	"testing"
)

// TestBuildThenLsRoundTrip builds a fresh image with an init binary and
// a small skeleton tree, then checks ls sees both, the way the teacher's
// own mkfs verifies its output by reading back fs.Stat on the root
// inode before exiting.
func TestBuildThenLsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	kernelPath := filepath.Join(dir, "kernel.elf")
	if err := os.WriteFile(kernelPath, []byte("not a real ELF, just bytes to round-trip"), 0o644); err != nil {
		t.Fatal(err)
	}

	skel := filepath.Join(dir, "skel")
	if err := os.MkdirAll(filepath.Join(skel, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skel, "etc", "motd"), []byte("hello from skeleton\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	imagePath := filepath.Join(dir, "disk.img")
	if err := runBuild(buildOpts{
		out:               imagePath,
		kernel:            kernelPath,
		initPath:          "/init",
		skel:              skel,
		sizeMiB:           8,
		sectorsPerCluster: 2,
	}); err != nil {
		t.Fatalf("runBuild: %v", err)
	}

	if err := runLs(imagePath, "/", true); err != nil {
		t.Fatalf("runLs: %v", err)
	}
	if err := runInspect(imagePath); err != nil {
		t.Fatalf("runInspect: %v", err)
	}
}

func TestCreateAtNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "disk.img")
	if err := runBuild(buildOpts{
		out:               imagePath,
		kernel:            writeTempFile(t, dir, "init", []byte("x")),
		initPath:          "/a/b/c/init",
		sizeMiB:           8,
		sectorsPerCluster: 2,
	}); err != nil {
		t.Fatalf("runBuild: %v", err)
	}
	if err := runLs(imagePath, "/a/b/c", false); err != nil {
		t.Fatalf("runLs nested dir: %v", err)
	}
}

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}
