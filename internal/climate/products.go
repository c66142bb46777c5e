package climate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProductKind names a derived product: the variable followed by the
// reduction, e.g. pptsum for cumulative precipitation.
func ProductKind(v Variable, red Reduction) string {
	return string(v) + red.Name()
}

// ProductPath returns where a windowed product is written. The name encodes
// tile, date, kind and window length, so repeated requests overwrite the same
// file and distinct window lengths never collide.
func ProductPath(root, tile string, date time.Time, kind string, days int) string {
	date = Day(date)
	name := fmt.Sprintf("%s_%s_prism_%s-%d.bil", tile, DateToken(date), kind, days)
	return filepath.Join(root, tile, strconv.Itoa(date.Year()), name)
}

// DailyProductPath returns where the single-day product of v is linked.
func DailyProductPath(root, tile string, date time.Time, v Variable) string {
	date = Day(date)
	name := fmt.Sprintf("%s_%s_prism_%s.bil", tile, DateToken(date), v)
	return filepath.Join(root, tile, strconv.Itoa(date.Year()), name)
}

// ManifestPath returns the JSON sidecar of a product raster.
func ManifestPath(productPath string) string {
	return strings.TrimSuffix(productPath, ".bil") + ".json"
}

// WriteManifest stores p next to its raster, replacing any previous manifest atomically.
func WriteManifest(p DerivedProduct) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	path := ManifestPath(p.Path)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadManifest loads the manifest of the product raster at productPath.
func ReadManifest(productPath string) (DerivedProduct, error) {
	var p DerivedProduct
	data, err := os.ReadFile(ManifestPath(productPath))
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode manifest: %w", err)
	}
	return p, nil
}
