package dedup

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

var runFilePattern = regexp.MustCompile(`^(\d{4,})$`)

// CleanupStaleArtifacts removes leftover "<prefix>.NNNN" run files and a
// leftover scratch chunk file from a previous interrupted invocation.
// Runs are created with O_TRUNC and never resumed across process
// restarts, so anything matching the naming scheme at startup is
// guaranteed to be garbage rather than another process's live state.
func CleanupStaleArtifacts(hashStoragePrefix, chunkFile string) error {
	dir := filepath.Dir(hashStoragePrefix)
	base := filepath.Base(hashStoragePrefix)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if len(name) <= len(base)+1 || name[:len(base)] != base || name[len(base)] != '.' {
			continue
		}
		suffix := name[len(base)+1:]
		if !runFilePattern.MatchString(suffix) {
			continue
		}
		if _, err := strconv.Atoi(suffix); err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if err := os.Remove(chunkFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
