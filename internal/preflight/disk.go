package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinFreeBytes is the free-space floor for a store directory.
const MinFreeBytes = 100 << 20

// rebuildHeadroom is how many copies of the current store footprint must
// fit in free space: a reindex rewrites every embedding row and the WAL can
// grow to the size of the rewritten table before a checkpoint.
const rebuildHeadroom = 2

// storeSidecars are the SQLite files that share the store's name.
var storeSidecars = []string{"", "-wal", "-shm"}

// storeFootprint sums the store file and its WAL and shared-memory files.
// Missing files count as zero.
func storeFootprint(storePath string) uint64 {
	var total uint64
	for _, suffix := range storeSidecars {
		if info, err := os.Stat(storePath + suffix); err == nil && info.Mode().IsRegular() {
			total += uint64(info.Size())
		}
	}
	return total
}

// requiredFree is the free space a store of the given footprint needs.
func requiredFree(footprint uint64) uint64 {
	return max(MinFreeBytes, rebuildHeadroom*footprint)
}

// existingParent walks up from path to the nearest directory that exists,
// so a store that was never opened is checked on the volume it will use.
func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// CheckDiskSpace checks that the volume holding storePath can absorb a full
// reindex of the store.
func (c *Checker) CheckDiskSpace(storePath string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}
	dir := existingParent(filepath.Dir(storePath))

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat %s: %v", dir, err)
		return result
	}
	free := stat.Bavail * uint64(stat.Bsize)
	footprint := storeFootprint(storePath)
	need := requiredFree(footprint)

	result.Status = StatusPass
	if free < need {
		result.Status = StatusFail
	}
	result.Message = fmt.Sprintf("%s free on %s; store uses %s, reindex needs %s",
		formatBytes(free), dir, formatBytes(footprint), formatBytes(need))
	return result
}

func formatBytes(n uint64) string {
	units := []string{"KB", "MB", "GB", "TB"}
	if n < 1024 {
		return fmt.Sprintf("%d bytes", n)
	}
	v := float64(n) / 1024
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}
