//go:build linux
// +build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// isTerminal reports whether fd refers to a terminal, used to reject an
// empty/interactive stdin the way the original CLI does with isatty(0).
func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}

// scanNulDelimited splits on NUL bytes, matching the output of
// `find ... -print0`.
func scanNulDelimited(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := indexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return 0, nil, fmt.Errorf("wrong input format: trailing path %q is not NUL-terminated", data)
	}
	return 0, nil, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// readFileList reads a NUL-separated list of paths from r. A non-empty
// trailing fragment with no terminating NUL is treated as malformed
// input, matching the original tool's "wrong input format" check.
func readFileList(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	scanner.Split(scanNulDelimited)

	var names []string
	for scanner.Scan() {
		tok := scanner.Text()
		if tok == "" {
			continue
		}
		names = append(names, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading file list: %w", err)
	}
	return names, nil
}

func warnIfStdinIsTerminal(errOut io.Writer) bool {
	if isTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(errOut, "please pipe a NUL-delimited file list to this program.")
		fmt.Fprintln(errOut, "use --help to get usage information.")
		return true
	}
	return false
}
