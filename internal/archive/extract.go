package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/i474232898/prism-archive/internal/climate"
)

// extract unpacks the regular files of a zip archive flat into dir and
// returns their names.
func extract(src, dir string) ([]string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(f.Name))
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			continue
		}
		if err := extractFile(f, filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("empty archive")
	}
	return names, nil
}

func extractFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// bandFile picks the .bil raster carrying v among the archive members. When
// several rasters are present the one naming v wins, then the first by name.
func bandFile(members []string, v climate.Variable) (string, error) {
	var bils []string
	for _, m := range members {
		if strings.EqualFold(filepath.Ext(m), ".bil") {
			bils = append(bils, m)
		}
	}
	if len(bils) == 0 {
		return "", fmt.Errorf("no .bil raster in archive")
	}
	sort.Strings(bils)
	tag := "_" + string(v) + "_"
	for _, b := range bils {
		if strings.Contains(b, tag) {
			return b, nil
		}
	}
	return bils[0], nil
}
