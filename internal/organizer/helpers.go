package organizer

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"syscall"
)

// Errors meaning the NZB directory sits on a filesystem that went away, such
// as an unmounted network share.
var outputUnavailableErrors = []error{
	syscall.ENODEV,
	syscall.ENOTCONN,
	syscall.EHOSTDOWN,
	syscall.EHOSTUNREACH,
	syscall.ETIMEDOUT,
	syscall.EIO,
	syscall.ESTALE,
}

func isOutputUnavailable(err error) bool {
	return err != nil && slices.ContainsFunc(outputUnavailableErrors, func(target error) bool {
		return errors.Is(err, target)
	})
}

// moveFile renames src to dst, replacing dst. Across filesystems the NZB is
// copied to a temporary file beside dst, checked, and renamed into place so
// readers never see a partial NZB.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyVerified(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	srcSum := sha256.New()
	if _, err = io.Copy(tmp, io.TeeReader(in, srcSum)); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dstSum := sha256.New()
	if _, err = io.Copy(dstSum, tmp); err != nil {
		return err
	}
	if string(srcSum.Sum(nil)) != string(dstSum.Sum(nil)) {
		return fmt.Errorf("copy of %s does not match the source", filepath.Base(src))
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
