package fscore

import (
	"bytes"
	"testing"

	"rvkernel/internal/blockdev"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	dev := blockdev.NewMem(2048)
	fs, err := Format(dev, 2)
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestFormatThenMountRoundTrip(t *testing.T) {
	dev := blockdev.NewMem(2048)
	if _, err := Format(dev, 2); err != nil {
		t.Fatal(err)
	}
	fs, err := Mount(dev)
	if err != nil {
		t.Fatal(err)
	}
	if fs.BPB.RootCluster != 2 {
		t.Fatalf("expected root cluster 2, got %d", fs.BPB.RootCluster)
	}
	if fs.BPB.SectorsPerCluster != 2 {
		t.Fatalf("expected 2 sectors per cluster, got %d", fs.BPB.SectorsPerCluster)
	}
}

func TestCreateFileAndReadBack(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootDir()

	entry, errno := root.Create("hello.txt", false)
	if errno != 0 {
		t.Fatalf("create failed: %d", errno)
	}
	data := []byte("hello from the root directory")
	if _, err := entry.File.WriteAt(0, data); err != nil {
		t.Fatal(err)
	}

	found, errno := root.Lookup("hello.txt")
	if errno != 0 {
		t.Fatalf("lookup failed: %d", errno)
	}
	if found.Size != uint32(len(data)) {
		t.Fatalf("expected size %d, got %d", len(data), found.Size)
	}
	got := make([]byte, len(data))
	if _, err := found.File.ReadAt(0, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestCreateDirectoryHasDotEntries(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootDir()

	sub, errno := root.Create("subdir", true)
	if errno != 0 {
		t.Fatalf("create dir failed: %d", errno)
	}
	if !sub.IsDir {
		t.Fatal("expected IsDir true")
	}

	if _, errno := sub.Dir.Lookup("."); errno != 0 {
		t.Fatalf("expected '.' entry, got errno %d", errno)
	}
	if _, errno := sub.Dir.Lookup(".."); errno != 0 {
		t.Fatalf("expected '..' entry, got errno %d", errno)
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootDir()
	if _, errno := root.Create("dup.txt", false); errno != 0 {
		t.Fatalf("first create failed: %d", errno)
	}
	if _, errno := root.Create("dup.txt", false); errno == 0 {
		t.Fatal("expected second create of the same name to fail")
	}
}

func TestListShowsCreatedEntries(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootDir()
	if _, errno := root.Create("a.txt", false); errno != 0 {
		t.Fatalf("create failed: %d", errno)
	}
	if _, errno := root.Create("b.txt", false); errno != 0 {
		t.Fatalf("create failed: %d", errno)
	}
	entries, errno := root.List()
	if errno != 0 {
		t.Fatalf("list failed: %d", errno)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
}

func TestRemoveThenLookupFails(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootDir()
	if _, errno := root.Create("gone.txt", false); errno != 0 {
		t.Fatalf("create failed: %d", errno)
	}
	if errno := root.Remove("gone.txt"); errno != 0 {
		t.Fatalf("remove failed: %d", errno)
	}
	if _, errno := root.Lookup("gone.txt"); errno == 0 {
		t.Fatal("expected lookup of removed file to fail")
	}
}

func TestRenameIntoSubdirKeepsContents(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootDir()

	entry, errno := root.Create("moving_target.txt", false)
	if errno != 0 {
		t.Fatalf("create failed: %d", errno)
	}
	data := []byte("contents survive a rename")
	if _, err := entry.File.WriteAt(0, data); err != nil {
		t.Fatal(err)
	}

	sub, errno := root.Create("dest", true)
	if errno != 0 {
		t.Fatalf("create dir failed: %d", errno)
	}

	if errno := root.Rename("moving_target.txt", sub.Dir, "renamed.txt"); errno != 0 {
		t.Fatalf("rename failed: %d", errno)
	}

	if _, errno := root.Lookup("moving_target.txt"); errno == 0 {
		t.Fatal("old name should be gone")
	}
	moved, errno := sub.Dir.Lookup("renamed.txt")
	if errno != 0 {
		t.Fatalf("lookup of renamed file failed: %d", errno)
	}
	if moved.Size != uint32(len(data)) {
		t.Fatalf("size %d after rename, want %d", moved.Size, len(data))
	}
	got := make([]byte, len(data))
	if _, err := moved.File.ReadAt(0, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("contents changed across rename: %q", got)
	}
}

func TestRenameOverExistingFileReplacesIt(t *testing.T) {
	fs := newTestFS(t)
	root := fs.RootDir()

	src, errno := root.Create("src.txt", false)
	if errno != 0 {
		t.Fatalf("create src failed: %d", errno)
	}
	src.File.WriteAt(0, []byte("new"))

	dst, errno := root.Create("dst.txt", false)
	if errno != 0 {
		t.Fatalf("create dst failed: %d", errno)
	}
	dst.File.WriteAt(0, []byte("old old old"))

	if errno := root.Rename("src.txt", root, "dst.txt"); errno != 0 {
		t.Fatalf("rename-over failed: %d", errno)
	}
	got, errno := root.Lookup("dst.txt")
	if errno != 0 {
		t.Fatalf("lookup failed: %d", errno)
	}
	if got.Size != 3 {
		t.Fatalf("size %d, want 3 (replaced, not merged)", got.Size)
	}
	buf := make([]byte, 3)
	got.File.ReadAt(0, buf)
	if string(buf) != "new" {
		t.Fatalf("contents %q, want new", buf)
	}
}
