package rotation

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LocalStore keeps rotation files under a directory on the local file system
type LocalStore struct {
	Root string
}

// filePath resolves p under Root, refusing anything that would escape it
func (fs *LocalStore) filePath(p string) (string, error) {
	full := filepath.Join(fs.Root, filepath.FromSlash(p))
	rel, err := filepath.Rel(fs.Root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("path %s would access files outside %s", p, fs.Root)
	}
	return full, nil
}

func (fs *LocalStore) ListObjects(prefix string) ([]string, error) {
	result := []string{}

	fullPath, err := fs.filePath(prefix)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return result, nil
	}

	err = filepath.Walk(fullPath, func(pathFound string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(fs.Root, pathFound)
		if err != nil {
			return err
		}
		result = append(result, filepath.ToSlash(rel))
		return nil
	})
	return result, err
}

func (fs *LocalStore) ReadObject(p string) ([]byte, error) {
	fullPath, err := fs.filePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrObjectNotFound, p)
	}
	return data, err
}

func (fs *LocalStore) WriteObject(p string, data []byte) error {
	fullPath, err := fs.filePath(p)
	if err != nil {
		return err
	}

	// Ensure any subdirs in between are created
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, data, 0644)
}
