package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/zhangboyang/blockdedup/dedup"
)

const (
	defaultBlockSize  = 4096
	defaultRefLimit   = 500
	defaultChunkLimit = 128 << 20
	defaultSortMemMiB = 600
	defaultHashFile   = "/tmp/blockdedup-hash"
	defaultChunkFile  = "/tmp/blockdedup-chunk"
)

type cliOptions struct {
	cfg  dedup.Config
	help bool
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return true
		}
	}
	return false
}

func parseFlags(errOut io.Writer, args []string) (cliOptions, int) {
	fs := flag.NewFlagSet("blockdedup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	hashFile := fs.StringP("hash-file", "s", defaultHashFile, "prefix for run files (<path>.NNNN)")
	chunkFile := fs.StringP("chunk-file", "c", defaultChunkFile, "scratch chunk file path")
	tempSize := fs.Uint64P("temp-size", "t", defaultChunkLimit, "scratch chunk file size ceiling, in bytes")
	sortMem := fs.Uint64P("sort-mem", "m", defaultSortMemMiB, "hash-storage sort buffer size, in MiB")
	refLimit := fs.Uint64P("ref-limit", "r", defaultRefLimit, "maximum references to a single physical block")
	blockSize := fs.Uint64P("block-size", "b", defaultBlockSize, "logical block size in bytes (must match the filesystem)")
	noRelocate := fs.Bool("no-relocate", false, "skip phase 3 (relocating singleton blocks)")
	noDedup := fs.Bool("no-dedup", false, "stop after the forecast report, don't submit anything to the kernel")
	planOut := fs.String("plan-out", "", "write the phase-1 forecast report to this path (atomically)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return cliOptions{}, 2
	}

	return cliOptions{
		cfg: dedup.Config{
			BlockSize:         *blockSize,
			RefLimit:          *refLimit,
			ChunkLimit:        *tempSize,
			ChunkFile:         *chunkFile,
			HashStoragePrefix: *hashFile,
			SortMemMiB:        *sortMem,
			RelocateEnabled:   !*noRelocate,
			DedupEnabled:      !*noDedup,
			PlanOutFile:       *planOut,
		},
	}, 0
}

func printHelp(out io.Writer, cfg dedup.Config) {
	fmt.Fprintf(out, "block-level offline deduplication for copy-on-write filesystems.\n\n")
	fmt.Fprintf(out, "usage:\n\n")
	fmt.Fprintf(out, "  find /path/to/dedup -type f -print0 | blockdedup [OPTIONS]\n\n")
	fmt.Fprintf(out, "parameters:\n")
	fmt.Fprintf(out, "  -t, --temp-size <bytes>   scratch chunk file size ceiling [default: %d]\n", defaultChunkLimit)
	fmt.Fprintf(out, "  -m, --sort-mem <MiB>      hash-storage sort buffer size [default: %d]\n", defaultSortMemMiB)
	fmt.Fprintf(out, "  -r, --ref-limit <n>       max references to a single block [default: %d]\n", defaultRefLimit)
	fmt.Fprintf(out, "  -b, --block-size <bytes>  filesystem block size [default: %d]\n", defaultBlockSize)
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "options:\n")
	fmt.Fprintf(out, "  -s, --hash-file <path>    run-file prefix [default: %s]\n", defaultHashFile)
	fmt.Fprintf(out, "  -c, --chunk-file <path>   scratch chunk file path [default: %s]\n", defaultChunkFile)
	fmt.Fprintf(out, "      --no-relocate         don't relocate unique data blocks (less space freed)\n")
	fmt.Fprintf(out, "      --no-dedup            show dedup plan only, don't touch any file\n")
	fmt.Fprintf(out, "      --plan-out <path>     write the phase-1 forecast report to this path\n")
	fmt.Fprintf(out, "  -h, --help                show this help\n")
	fmt.Fprintf(out, "\n")
}
