// Package pkgbuild assembles the host package from a template directory and
// build output, and deploys it into the host's package folders.
package pkgbuild

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauern/dxnodes/internal/logging"
)

const (
	// PackageName is the folder name of the deployed package.
	PackageName = "DataExchangeNodes"
	// ManifestFile is the package manifest inside the template.
	ManifestFile = "pkg.json"
	// DefaultVersion is used when no package version is given.
	DefaultVersion = "0.1.0"

	versionPlaceholder = "$Version$"
	hostPlaceholder    = "$DynamoVersion$"
)

// Host folders under the roaming application data directory.
var defaultHosts = []string{"Dynamo Core", "Dynamo Revit"}

// Package subdirectories created in every build.
var packageDirs = []string{"bin", "dyf", "extra"}

var (
	// ErrIncompleteBuild is returned when the template or binaries are missing.
	ErrIncompleteBuild = errors.New("incomplete build")
	// ErrMissingManifest is returned when the template has no pkg.json.
	ErrMissingManifest = errors.New("template has no " + ManifestFile)
)

// Options describes one package build.
type Options struct {
	TemplateDir string
	BinariesDir string
	TargetDir   string
	// Version replaces $Version$ in pkg.json.
	Version string
	// InstallVersion is the major.minor host version (e.g. 4.1). It replaces
	// $DynamoVersion$ and names the deploy folder.
	InstallVersion string
}

// Result reports what Build produced.
type Result struct {
	TargetDir string   `json:"targetDir" yaml:"targetDir"`
	Manifest  string   `json:"manifest" yaml:"manifest"`
	Binaries  []string `json:"binaries" yaml:"binaries"`
	Version   string   `json:"version" yaml:"version"`
}

// BinariesPath returns where the build places binaries for a configuration
// and full host version.
func BinariesPath(buildRoot, configuration, hostVersion string) string {
	return filepath.Join(buildRoot, "bin", configuration, hostVersion, PackageName, "win-x64")
}

// InstallVersion derives major.minor from a full host version such as
// 4.1.0-beta3200.
func InstallVersion(hostVersion string) string {
	core := hostVersion
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	if len(parts) < 2 {
		return core
	}
	return parts[0] + "." + parts[1]
}

// Build assembles the package into opts.TargetDir, replacing any previous
// build there.
func Build(opts Options) (*Result, error) {
	if opts.InstallVersion == "" {
		return nil, errors.New("install version is required")
	}
	if opts.TargetDir == "" {
		return nil, errors.New("target directory is required")
	}
	version := opts.Version
	if version == "" {
		version = DefaultVersion
	}

	if err := removeExisting(opts.TargetDir); err != nil {
		return nil, err
	}
	for _, dir := range []string{opts.TemplateDir, opts.BinariesDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %q is not a directory", ErrIncompleteBuild, dir)
		}
	}

	if err := copyDir(opts.TemplateDir, opts.TargetDir); err != nil {
		return nil, err
	}
	for _, d := range packageDirs {
		if err := os.MkdirAll(filepath.Join(opts.TargetDir, d), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", d, err)
		}
	}

	manifest := filepath.Join(opts.TargetDir, ManifestFile)
	if err := fillManifest(manifest, version, opts.InstallVersion); err != nil {
		return nil, err
	}
	logging.Info("package version set", "version", version)

	binaries, err := copyBinaries(opts.BinariesDir, filepath.Join(opts.TargetDir, "bin"))
	if err != nil {
		return nil, err
	}

	return &Result{
		TargetDir: opts.TargetDir,
		Manifest:  manifest,
		Binaries:  binaries,
		Version:   version,
	}, nil
}

// fillManifest substitutes the version placeholders in pkg.json.
func fillManifest(path, version, installVersion string) error {
	// #nosec G304 - path is the manifest inside the assembled package
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrMissingManifest
		}
		return fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}
	content := strings.ReplaceAll(string(data), versionPlaceholder, version)
	content = strings.ReplaceAll(content, hostPlaceholder, installVersion)
	// #nosec G306 - package manifest is meant to be readable
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ManifestFile, err)
	}
	return nil
}

// copyBinaries copies the top-level files of src into dst. Subdirectories
// are not copied.
func copyBinaries(src, dst string) ([]string, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read binaries %q: %w", src, err)
	}
	var copied []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return nil, err
		}
		copied = append(copied, e.Name())
	}
	return copied, nil
}

// DefaultRoots returns the host package roots under %APPDATA%/Dynamo, or
// nil when APPDATA is unset.
func DefaultRoots() []string {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		return nil
	}
	roots := make([]string, 0, len(defaultHosts))
	for _, h := range defaultHosts {
		roots = append(roots, filepath.Join(appData, "Dynamo", h))
	}
	return roots
}

// DeployPath returns the package folder under one host root.
func DeployPath(root, installVersion string) string {
	return filepath.Join(root, installVersion, "packages", PackageName)
}

// Deploy replaces the package folder under every root with a copy of
// packageDir and returns the folders written.
func Deploy(packageDir string, roots []string, installVersion string) ([]string, error) {
	if installVersion == "" {
		return nil, errors.New("install version is required")
	}
	var deployed []string
	for _, root := range roots {
		dst := DeployPath(root, installVersion)
		if err := removeExisting(dst); err != nil {
			return deployed, err
		}
		if err := copyDir(packageDir, dst); err != nil {
			return deployed, fmt.Errorf("failed to deploy to %q: %w", dst, err)
		}
		logging.Info("package deployed", logging.Path(dst))
		deployed = append(deployed, dst)
	}
	return deployed, nil
}
