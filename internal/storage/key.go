package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/gosimple/slug"
)

// RoutePhotoKey builds the object key for a route photo:
// users/<userID>/routes/<epochMs>_<name><ext>
func RoutePhotoKey(userID, fileName string, epochMs int64) string {
	base := fileName
	ext := strings.ToLower(path.Ext(fileName))
	if isSimpleExt(ext) {
		base = strings.TrimSuffix(fileName, path.Ext(fileName))
	} else {
		ext = ""
	}

	name := slug.Make(base)
	if name == "" {
		name = "photo"
	}

	owner := strings.ReplaceAll(userID, "/", "_")
	return fmt.Sprintf("users/%s/routes/%d_%s%s", owner, epochMs, name, ext)
}

func isSimpleExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
