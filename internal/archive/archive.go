// Package archive bundles the geometry of an exchange into a portable
// tar.gz file and unpacks such bundles.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauern/dxnodes/internal/model"
)

const (
	// FormatVersion is written to every bundle manifest.
	FormatVersion = "1.0"
	manifestName  = "manifest.json"
	geometryDir   = "geometry"
)

var (
	// ErrMissingManifest is returned when a bundle has no manifest.json.
	ErrMissingManifest = errors.New("bundle missing " + manifestName)
	// ErrEmptyBundle is returned when there is no geometry to bundle.
	ErrEmptyBundle = errors.New("no geometry to bundle")
	// ErrUnsafePath is returned for entries that would escape the target directory.
	ErrUnsafePath = errors.New("unsafe path in bundle")
)

// Manifest describes a bundle.
type Manifest struct {
	Version   string         `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Exchange  model.Exchange `json:"exchange"`
	FileCount int            `json:"file_count"`
	Files     []ManifestFile `json:"files"`
}

// ManifestFile is one geometry entry of a bundle.
type ManifestFile struct {
	AssetID       string `json:"asset_id"`
	Name          string `json:"name"`
	Filename      string `json:"filename"`
	GeometryCount int    `json:"geometry_count"`
	Size          int64  `json:"size"`
}

// TotalGeometry sums the geometry counts of every file.
func (m *Manifest) TotalGeometry() int {
	total := 0
	for _, f := range m.Files {
		total += f.GeometryCount
	}
	return total
}

// Create writes a tar.gz bundle of files to w.
func Create(w io.Writer, e model.Exchange, files []model.GeometryFile) (err error) {
	if len(files) == 0 {
		return ErrEmptyBundle
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)
	defer func() {
		err = errors.Join(err, tarWriter.Close(), gzWriter.Close())
	}()

	manifest := Manifest{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Exchange:  e,
		FileCount: len(files),
		Files:     make([]ManifestFile, 0, len(files)),
	}

	seen := make(map[string]int, len(files))
	for _, f := range files {
		name := f.Name
		if name == "" {
			name = f.AssetID
		}
		// element names are restored from file names, so keep them and
		// number repeats
		base := model.SanitizeFileName(name)
		seen[base]++
		if seen[base] > 1 {
			base = fmt.Sprintf("%s_%d", base, seen[base])
		}
		filename := path.Join(geometryDir, base+model.ExportExtension)
		size, err := addFile(tarWriter, f.Path, filename)
		if err != nil {
			return err
		}
		manifest.Files = append(manifest.Files, ManifestFile{
			AssetID:       f.AssetID,
			Name:          name,
			Filename:      filename,
			GeometryCount: f.GeometryCount,
			Size:          size,
		})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	header := &tar.Header{
		Name:    manifestName,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: manifest.CreatedAt,
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write manifest header: %w", err)
	}
	if _, err := tarWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest data: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, src, name string) (int64, error) {
	f, err := os.Open(src) // #nosec G304 - path comes from the exchange store
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", src, err)
	}
	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return 0, fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}
	return info.Size(), nil
}

// Extract unpacks a bundle into targetDir and returns its manifest with
// the geometry file paths in manifest order. Files are not written when
// targetDir is empty.
func Extract(r io.Reader, targetDir string) (*Manifest, []string, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gzReader.Close() }()

	tarReader := tar.NewReader(gzReader)
	var manifest *Manifest
	written := make(map[string]string)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		if header.Name == manifestName {
			manifest = &Manifest{}
			if err := json.NewDecoder(tarReader).Decode(manifest); err != nil {
				return nil, nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			continue
		}
		if path.Dir(header.Name) != geometryDir || targetDir == "" {
			continue
		}

		dst, err := safeJoin(targetDir, header.Name)
		if err != nil {
			return nil, nil, err
		}
		if err := writeEntry(tarReader, dst); err != nil {
			return nil, nil, err
		}
		written[header.Name] = dst
	}

	if manifest == nil {
		return nil, nil, ErrMissingManifest
	}

	var paths []string
	if targetDir != "" {
		for _, f := range manifest.Files {
			p, ok := written[f.Filename]
			if !ok {
				return nil, nil, fmt.Errorf("bundle missing %s", f.Filename)
			}
			paths = append(paths, p)
		}
	}
	return manifest, paths, nil
}

func safeJoin(dir, name string) (string, error) {
	dst := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, dst)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return dst, nil
}

func writeEntry(r io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) // #nosec G304 - path checked by safeJoin
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return f.Close()
}
