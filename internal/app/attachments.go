package app

import (
	"os"
	"path/filepath"
	"strings"
)

// dirAttachments answers attachment existence checks against a staging
// directory. Ids are file names; anything resembling a path is rejected.
type dirAttachments struct {
	dir string
}

func newDirAttachments(dir string) dirAttachments {
	return dirAttachments{dir: dir}
}

func (d dirAttachments) Exists(id string) bool {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return false
	}
	fi, err := os.Stat(filepath.Join(d.dir, id))
	return err == nil && fi.Mode().IsRegular()
}
