package rotation

import (
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/internal/models"
)

// ErrObjectNotFound is returned by a Store reading a path that does not exist
var ErrObjectNotFound = errors.New("rotation file not found")

// Store is the object storage rotation files are saved to. Paths are
// slash-separated and relative to the store's rotations root, so the same
// code runs against a local directory or an S3 bucket prefix.
type Store interface {
	ListObjects(prefix string) ([]string, error)
	ReadObject(path string) ([]byte, error)
	WriteObject(path string, data []byte) error
}

// FilePath returns <volume_label>/<timestamp>.toml for a sequence
func FilePath(volumeLabel, timestamp string) (string, error) {
	if err := models.ValidateLabel(volumeLabel); err != nil {
		return "", err
	}
	if timestamp == "" || strings.ContainsAny(timestamp, `/\`) || strings.Contains(timestamp, "..") {
		return "", errors.Errorf("timestamp %q cannot be used as a file name", timestamp)
	}
	return path.Join(volumeLabel, timestamp+".toml"), nil
}

// Save writes the sequence at its conventional path and returns that path.
// Saving is always an explicit user action.
func Save(store Store, seq *Sequence) (string, error) {
	p, err := FilePath(seq.Metadata.VolumeLabel, seq.Metadata.Timestamp)
	if err != nil {
		return "", err
	}
	content, err := seq.ToTOML()
	if err != nil {
		return "", err
	}
	if err := store.WriteObject(p, []byte(content)); err != nil {
		return "", errors.Wrapf(err, "failed to write rotation file %s", p)
	}
	return p, nil
}

// Load reads and parses the rotation file at p
func Load(store Store, p string) (*Sequence, error) {
	data, err := store.ReadObject(p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read rotation file %s", p)
	}
	seq, err := FromTOML(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "rotation file %s", p)
	}
	return seq, nil
}

// List returns the saved rotation files of a volume, oldest first
func List(store Store, volumeLabel string) ([]string, error) {
	if err := models.ValidateLabel(volumeLabel); err != nil {
		return nil, err
	}
	all, err := store.ListObjects(volumeLabel + "/")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list rotation files for %s", volumeLabel)
	}

	result := []string{}
	for _, p := range all {
		if strings.HasSuffix(p, ".toml") && path.Dir(p) == volumeLabel {
			result = append(result, p)
		}
	}
	sort.Strings(result)
	return result, nil
}
