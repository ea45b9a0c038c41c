// Package artifactstore implements the local filesystem mirror §4.3 calls
// "local artifact storage": C3 loads handler source from here on the hot
// path, never hitting the remote C2 repository directly on every inbound
// update. A file is fetched from the remote store only when a Load finds it
// missing here; the scheduler's sync job reads this mirror and does not
// contact the remote store.
package artifactstore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

const fileSuffix = ".go.txt"

// LocalMirror is a directory of handler source files named <handler>.go.txt.
type LocalMirror struct {
	dir string
}

// NewLocalMirror builds a LocalMirror rooted at dir, creating it if absent.
func NewLocalMirror(dir string) (*LocalMirror, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, shared.WrapError("artifactmirror", "NewLocalMirror", shared.ErrExternalService, "create mirror directory", err)
	}
	return &LocalMirror{dir: dir}, nil
}

func (m *LocalMirror) path(handlerName string) string {
	return filepath.Join(m.dir, handlerName+fileSuffix)
}

// Read returns a handler's mirrored source, or ok=false if no file exists.
func (m *LocalMirror) Read(handlerName string) (string, bool, error) {
	data, err := os.ReadFile(m.path(handlerName))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, shared.WrapError("artifactmirror", "Read", shared.ErrExternalService, "read mirrored artifact", err)
	}
	return string(data), true, nil
}

// Write (over)writes a handler's mirrored source.
func (m *LocalMirror) Write(handlerName, source string) error {
	if err := os.WriteFile(m.path(handlerName), []byte(source), 0o644); err != nil {
		return shared.WrapError("artifactmirror", "Write", shared.ErrExternalService, "write mirrored artifact", err)
	}
	return nil
}

// Delete removes a handler's mirrored source file, part of §4.3's quarantine
// procedure ("delete the source file locally").
func (m *LocalMirror) Delete(handlerName string) error {
	err := os.Remove(m.path(handlerName))
	if err != nil && !os.IsNotExist(err) {
		return shared.WrapError("artifactmirror", "Delete", shared.ErrExternalService, "delete mirrored artifact", err)
	}
	return nil
}

// List returns the handler names currently mirrored on disk, sorted, for the
// periodic synchronisation job's "new files discovered ... sorted order".
func (m *LocalMirror) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, shared.WrapError("artifactmirror", "List", shared.ErrExternalService, "list mirror directory", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileSuffix))
	}
	sort.Strings(names)
	return names, nil
}
