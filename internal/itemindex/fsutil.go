package itemindex

import (
	"os"
	"path/filepath"

	"github.com/mhowlett/infumap/internal/apperr"
)

func dirJoin(dir, filename string) string { return filepath.Join(dir, filename) }

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperr.Wrap(apperr.IO, "stat item log file", err)
}
