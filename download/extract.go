package download

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"nppestool/npdata"
)

// Extracted lists the files unpacked from an archive and the recognised
// NPPES files among them.
type Extracted struct {
	Dir               string
	Files             []string
	Main              string
	Taxonomy          string
	OtherNames        string
	PracticeLocations string
	Endpoints         string
}

func (e Extracted) HasMain() bool { return e.Main != "" }

// Paths converts the recognised files for npdata.Open.
func (e Extracted) Paths() npdata.Paths {
	return npdata.Paths{
		Main:              e.Main,
		OtherNames:        e.OtherNames,
		PracticeLocations: e.PracticeLocations,
		Endpoints:         e.Endpoints,
		Taxonomy:          e.Taxonomy,
	}
}

// Summary names the recognised files, e.g. "Found: Main Data, Endpoints".
func (e Extracted) Summary() string {
	var parts []string
	for _, f := range []struct{ path, label string }{
		{e.Main, "Main Data"},
		{e.Taxonomy, "Taxonomy"},
		{e.OtherNames, "Other Names"},
		{e.PracticeLocations, "Practice Locations"},
		{e.Endpoints, "Endpoints"},
	} {
		if f.path != "" {
			parts = append(parts, f.label)
		}
	}
	if len(parts) == 0 {
		return "No recognized NPPES files found"
	}
	return "Found: " + strings.Join(parts, ", ")
}

func (e *Extracted) classify(path string) {
	kind, ok := npdata.DetectFileKind(path)
	if !ok {
		return
	}
	switch kind {
	case npdata.MainFile:
		e.Main = path
	case npdata.OtherNameFile:
		e.OtherNames = path
	case npdata.PracticeLocationFile:
		e.PracticeLocations = path
	case npdata.EndpointFile:
		e.Endpoints = path
	case npdata.TaxonomyFile:
		e.Taxonomy = path
	}
}

// Extract unpacks zipPath into dir. Entries that would land outside dir are
// rejected.
func (d *Downloader) Extract(zipPath, dir string) (Extracted, error) {
	logger := d.logger
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return Extracted{}, fmt.Errorf("open zip %s: %w", zipPath, err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return Extracted{}, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Extracted{}, fmt.Errorf("create %s: %w", root, err)
	}

	ex := Extracted{Dir: root}
	logger.Info("extracting", zap.String("archive", zipPath), zap.String("dir", root))
	for _, zf := range zr.File {
		target := filepath.Join(root, zf.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return ex, fmt.Errorf("zip entry %q escapes %s", zf.Name, root)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return ex, err
			}
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return ex, err
		}
		ex.Files = append(ex.Files, target)
		ex.classify(target)
		logger.Debug("extracted", zap.String("file", zf.Name), zap.Uint64("bytes", zf.UncompressedSize64))
	}
	logger.Info("extraction complete", zap.Int("files", len(ex.Files)), zap.String("summary", ex.Summary()))
	return ex, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", zf.Name, err)
	}
	return out.Close()
}
