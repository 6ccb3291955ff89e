//go:build linux
// +build linux

package kernel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnumerateFileBlocksSkipsEmpty(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var warnings []string
	warn := func(msg string) { warnings = append(warnings, msg) }

	called := false
	err := EnumerateFileBlocks(empty, 4096, warn, func(uint64) { called = true }, func(BlockInfo, ReadFunc) {})
	if err != nil {
		t.Fatalf("unexpected error on empty file: %v", err)
	}
	if called {
		t.Fatal("onSize should not be called for an empty file")
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning for empty file, got %v", warnings)
	}
}

func TestEnumerateFileBlocksNonRegular(t *testing.T) {
	dir := t.TempDir()
	var warnings []string
	err := EnumerateFileBlocks(dir, 4096, func(m string) { warnings = append(warnings, m) }, func(uint64) {}, func(BlockInfo, ReadFunc) {})
	if err != nil {
		t.Fatalf("unexpected error on directory: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning for non-regular file, got %v", warnings)
	}
}

func TestEnumerateFileBlocksReadsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	blockSize := uint64(4096)
	content := make([]byte, blockSize*2)
	for i := range content {
		content[i] = byte(i % 256)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	var sawSize uint64
	var blocks []BlockInfo
	var reads [][]byte
	err := EnumerateFileBlocks(path, blockSize, func(string) {}, func(sz uint64) {
		sawSize = sz
	}, func(info BlockInfo, read ReadFunc) {
		blocks = append(blocks, info)
		data, ok := read()
		if !ok {
			t.Fatal("expected read to succeed")
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		reads = append(reads, cp)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawSize != uint64(len(content)) {
		t.Fatalf("got size %d, want %d", sawSize, len(content))
	}
	if len(blocks) == 0 {
		t.Fatal("expected at least one block, filesystem may not support FIEMAP in this environment")
	}
	var total int
	for _, r := range reads {
		total += len(r)
	}
	if total != len(content) {
		t.Fatalf("read %d total bytes across blocks, want %d", total, len(content))
	}
}
