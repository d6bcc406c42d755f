package dicom

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom"
)

// CollectFiles expands paths into the DICOM files they contain. Directories
// are walked recursively and only files that open as DICOM are kept; files
// named explicitly are always kept. DICOMDIR index files are skipped. The
// result is sorted and free of duplicates.
func CollectFiles(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if strings.EqualFold(d.Name(), "DICOMDIR") {
				return nil
			}
			if isDICOM(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// isDICOM reports whether the file header parses as DICOM. Only the header is
// read, pixel data is skipped.
func isDICOM(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.Size() < 132 {
		return false
	}
	_, err = dicom.NewParser(f, info.Size(), nil, dicom.SkipPixelData())
	return err == nil
}
