package layer

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// readZippedShapefile extracts a zipped shapefile into a temporary directory,
// reads the first .shp it contains, and removes the extracted files.
func readZippedShapefile(zipPath, tempDir string) (*Layer, error) {
	dir, err := os.MkdirTemp(tempDir, "proxsuit-layer-*")
	if err != nil {
		return nil, eris.Wrap(err, "layer: create extract dir")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if err := extractZIP(zipPath, dir); err != nil {
		return nil, eris.Wrapf(err, "layer: extract %s", zipPath)
	}

	shpPath, err := findFileByExt(dir, ".shp")
	if err != nil {
		return nil, eris.Wrapf(err, "layer: %s", zipPath)
	}

	l, err := ReadShapefile(shpPath)
	if err != nil {
		return nil, err
	}
	l.Source = zipPath
	return l, nil
}

// extractZIP flattens every file entry of a ZIP archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		if name == "." || name == ".." || strings.HasPrefix(name, "._") {
			continue
		}

		if err := extractEntry(f, filepath.Join(destDir, name)); err != nil {
			return err
		}
	}

	return nil
}

func extractEntry(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return eris.Wrapf(err, "create %s", destPath)
	}

	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "extract %s", f.Name)
	}
	return eris.Wrapf(out.Close(), "close %s", destPath)
}

func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
