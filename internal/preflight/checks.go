package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// TotalMemory reports the machine's physical memory in bytes.
var TotalMemory = func() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckInputFile verifies that path is a readable regular file.
func CheckInputFile(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not set"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, humanize.IBytes(uint64(info.Size())))}
}

// CheckMemory verifies the archive plus headroom fits in physical memory.
func CheckMemory(archive string, headroom uint64) Result {
	const name = "Memory"

	info, err := os.Stat(archive)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("stat %s: %v", archive, err)}
	}
	total, err := TotalMemory()
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if err := Fits(info.Size(), headroom, total); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s of %s needed", humanize.IBytes(uint64(info.Size())+headroom), humanize.IBytes(total))}
}

// Fits returns an error when size bytes plus headroom exceed total.
func Fits(size int64, headroom, total uint64) error {
	if size < 0 {
		size = 0
	}
	if uint64(size)+headroom > total {
		return fmt.Errorf("archive needs %s (+%s headroom) but only %s of memory is installed",
			humanize.IBytes(uint64(size)), humanize.IBytes(headroom), humanize.IBytes(total))
	}
	return nil
}

// CheckCommand verifies that the first element of argv resolves to an
// executable. Relative paths containing a separator resolve against workdir.
func CheckCommand(name string, argv []string, workdir string) Result {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	bin := argv[0]
	if strings.ContainsRune(bin, filepath.Separator) && !filepath.IsAbs(bin) && workdir != "" {
		bin = filepath.Join(workdir, bin)
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", argv[0])}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}
