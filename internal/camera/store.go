package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// ImageStore persists finished images as <dir>/img-<seq>.sc.
type ImageStore struct {
	fs  afero.Fs
	dir string
}

// NewImageStore creates dir on fs if needed.
func NewImageStore(fs afero.Fs, dir string) (*ImageStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{fs: fs, dir: dir}, nil
}

// Save writes one image and returns its path.
func (s *ImageStore) Save(seq uint64, data []byte) (string, error) {
	name := filepath.Join(s.dir, fmt.Sprintf("img-%06d.sc", seq))
	tmp := name + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		return "", fmt.Errorf("rename image: %w", err)
	}
	return name, nil
}

// List returns stored image paths in sequence order.
func (s *ImageStore) List() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, fi := range infos {
		if fi.Mode()&os.ModeType != 0 || filepath.Ext(fi.Name()) != ".sc" {
			continue
		}
		out = append(out, filepath.Join(s.dir, fi.Name()))
	}
	sort.Strings(out)
	return out, nil
}
