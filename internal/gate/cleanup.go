package gate

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupStaleWorkdirs removes rasterization directories under root (os.TempDir()
// when empty) older than maxAge. Requests always remove their own directory;
// this only catches what a killed process left behind.
func CleanupStaleWorkdirs(root string, maxAge time.Duration) int {
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		log.Warn().Err(err).Str("root", root).Msg("cannot scan for stale workdirs")
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workdirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("root", root).Msg("removed stale rasterization workdirs")
	}
	return removed
}
