package metaimage

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/internal/logger"
	"github.com/sudomakeinstall/cardio/internal/models"
)

// LoadSeries loads the frames of a cine series. With a pattern, frames are
// <dir>/<pattern with $frame = 0, 1, 2 ...> until the first missing file.
// Without one, every .mhd/.mha file in dir is loaded, ordered by the number
// in its name.
func LoadSeries(dir, pattern string, log logger.ILogger) ([]*models.Image, error) {
	var paths []string
	var err error
	if pattern != "" {
		paths, err = patternPaths(dir, pattern)
	} else {
		paths, err = directoryPaths(dir)
	}
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no MetaImage frames found in %s", dir)
	}

	frames := make([]*models.Image, 0, len(paths))
	for i, p := range paths {
		log.Debugf("Loading frame %d from %s", i, p)
		img, err := Read(p)
		if err != nil {
			return nil, err
		}
		if len(frames) > 0 && img.Size != frames[0].Size {
			return nil, errors.Errorf("frame %d has size %v, frame 0 has %v", i, img.Size, frames[0].Size)
		}
		frames = append(frames, img)
	}
	log.Infof("Loaded %d frames from %s", len(frames), dir)
	return frames, nil
}

func patternPaths(dir, pattern string) ([]string, error) {
	if err := models.ValidateFramePattern(pattern); err != nil {
		return nil, err
	}
	var paths []string
	for frame := 0; ; frame++ {
		p := filepath.Join(dir, models.FrameFilename(pattern, frame))
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return paths, nil
			}
			return nil, err
		}
		paths = append(paths, p)
	}
}

func directoryPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !entry.IsDir() && (ext == ".mhd" || ext == ".mha") {
			names = append(names, entry.Name())
		}
	}

	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// extractNumber concatenates the digits of a file name; names without digits
// sort first
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return -1
	}
	return n
}
