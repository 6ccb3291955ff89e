// Command blockdedup finds and reclaims duplicate blocks across a set
// of files on a copy-on-write filesystem (Btrfs, XFS with reflink)
// using the kernel's dedup-range ioctl. It reads a NUL-delimited list
// of paths on standard input — the output of `find ... -print0` — and
// never touches anything outside the files it is given.
package main

import (
	"fmt"
	"os"

	"github.com/zhangboyang/blockdedup/dedup"
	"github.com/zhangboyang/blockdedup/kernel"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in *os.File, out, errOut *os.File) int {
	fmt.Fprintln(out, "blockdedup")
	fmt.Fprintln(out, "https://github.com/zhangboyang/blockdedup")
	fmt.Fprintln(out)

	if hasHelpFlag(args) {
		printHelp(out, dedup.Config{})
		return 1
	}

	opts, code := parseFlags(errOut, args)
	if code != 0 {
		printHelp(errOut, opts.cfg)
		return code
	}

	if warnIfStdinIsTerminal(errOut) {
		return 1
	}

	names, err := readFileList(in)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	soft, hard, err := kernel.RaiseFDLimit(opts.cfg.RefLimit + 2500)
	if err != nil {
		fmt.Fprintln(errOut, "warning:", err)
	} else {
		fmt.Fprintf(out, "max file descriptors set to %d/%d (soft/hard).\n\n", soft, hard)
	}

	if err := dedup.CleanupStaleArtifacts(opts.cfg.HashStoragePrefix, opts.cfg.ChunkFile); err != nil {
		fmt.Fprintln(errOut, "warning: could not clean up leftover files from a previous run:", err)
	}

	engine := dedup.New(opts.cfg, names, out, errOut)
	if err := engine.Run(); err != nil {
		fmt.Fprintln(errOut, "fatal:", err)
		return 1
	}
	return 0
}
