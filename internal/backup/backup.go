// Package backup keeps local files alive across calls that consume them.
//
// A Guard copies each registered file next to itself before a destructive
// call and moves the copy back afterwards. Restore runs on success and
// failure paths alike and never leaves a backup artifact behind.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/klauern/dxnodes/internal/logging"
)

// DefaultSuffix is appended to a file's path to name its backup.
const DefaultSuffix = ".backup"

// maxNameAttempts bounds the search for an unused backup name.
const maxNameAttempts = 100

// Options configures backup behavior
type Options struct {
	// Suffix names the backup copy (path + Suffix). Defaults to DefaultSuffix.
	Suffix string
}

// Guard holds the backups of one scope. It is not safe for concurrent use.
type Guard struct {
	suffix  string
	backups []Metadata
}

// NewGuard creates an empty guard.
func NewGuard(opts Options) *Guard {
	suffix := opts.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &Guard{suffix: suffix}
}

// Backups returns the backups currently held.
func (g *Guard) Backups() []Metadata {
	out := make([]Metadata, len(g.backups))
	copy(out, g.backups)
	return out
}

// Backup copies every path to path+suffix, or to path+suffix+".N" when that
// name is already taken. Existing files are never overwritten. If any copy
// fails, the backups already taken are removed and the error is returned.
func (g *Guard) Backup(paths ...string) error {
	for _, p := range paths {
		meta, err := g.backupFile(p)
		if err != nil {
			if rerr := g.discard(); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return err
		}
		g.backups = append(g.backups, *meta)
		logging.Debug("backed up file", logging.Path(p))
	}
	return nil
}

func (g *Guard) backupFile(sourcePath string) (*Metadata, error) {
	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source path %q: %w", sourcePath, err)
	}
	if sourceInfo.IsDir() {
		return nil, fmt.Errorf("cannot back up directory %q", sourcePath)
	}

	dst, err := g.create(sourcePath, sourceInfo.Mode())
	if err != nil {
		return nil, err
	}
	backupPath := dst.Name()
	if err := copyFile(sourcePath, dst); err != nil {
		return nil, err
	}

	hashStr, err := hashFile(backupPath)
	if err != nil {
		_ = os.Remove(backupPath)
		return nil, err
	}

	return &Metadata{
		SourcePath: sourcePath,
		BackupPath: backupPath,
		CreatedAt:  time.Now(),
		ModifiedAt: sourceInfo.ModTime(),
		Hash:       hashStr,
		Size:       sourceInfo.Size(),
	}, nil
}

// Restore moves every backup back to its original path. When the original
// still exists the backup is simply removed. All backups are processed even
// if some fail; the failures are joined.
func (g *Guard) Restore() error {
	var errs []error
	for _, m := range g.backups {
		if err := restoreOne(m); err != nil {
			errs = append(errs, err)
		}
	}
	g.backups = nil
	return errors.Join(errs...)
}

func restoreOne(m Metadata) error {
	if _, err := os.Stat(m.SourcePath); err == nil {
		if err := os.Remove(m.BackupPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove backup %q: %w", m.BackupPath, err)
		}
		logging.Debug("original still present, dropped backup", logging.Path(m.SourcePath))
		return nil
	}

	if err := m.Verify(); err != nil {
		return fmt.Errorf("cannot restore %q: %w", m.SourcePath, err)
	}
	if err := os.Rename(m.BackupPath, m.SourcePath); err != nil {
		return fmt.Errorf("failed to restore %q: %w", m.SourcePath, err)
	}
	logging.Debug("restored file", logging.Path(m.SourcePath))
	return nil
}

// discard removes backups without restoring anything.
func (g *Guard) discard() error {
	var errs []error
	for _, m := range g.backups {
		if err := os.Remove(m.BackupPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	g.backups = nil
	return errors.Join(errs...)
}

// Protect backs up paths, runs fn, and restores the files whatever fn
// returns. fn's error takes precedence; a restore failure is joined to it.
func Protect(paths []string, opts Options, fn func() error) (err error) {
	g := NewGuard(opts)
	if err := g.Backup(paths...); err != nil {
		return fmt.Errorf("failed to back up files: %w", err)
	}
	defer func() {
		if rerr := g.Restore(); rerr != nil {
			logging.Error("failed to restore backed up files", logging.Err(rerr))
			err = errors.Join(err, fmt.Errorf("failed to restore files: %w", rerr))
		}
	}()
	return fn()
}

// create opens a new backup file next to sourcePath under the first
// unused name.
func (g *Guard) create(sourcePath string, perm fs.FileMode) (*os.File, error) {
	for n := 0; n < maxNameAttempts; n++ {
		name := sourcePath + g.suffix
		if n > 0 {
			name = fmt.Sprintf("%s%s.%d", sourcePath, g.suffix, n)
		}
		// #nosec G302 G304 - preserving source permissions, name sits next to the source
		f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create backup %q: %w", name, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("no unused backup name for %q", sourcePath)
}

// copyFile copies src into dstFile and closes it. dstFile is removed on
// failure.
func copyFile(src string, dstFile *os.File) error {
	dst := dstFile.Name()
	// #nosec G304 - src is a caller-registered asset file
	srcFile, err := os.Open(src)
	if err != nil {
		_ = dstFile.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to open source %q: %w", src, err)
	}
	defer func() { _ = srcFile.Close() }()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to copy content to %q: %w", dst, err)
	}
	if err := dstFile.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to close backup %q: %w", dst, err)
	}
	return nil
}
