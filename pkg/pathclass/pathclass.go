// Package pathclass holds pure helpers for classifying paths and file sizes.
package pathclass

import (
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/moby/sys/mountinfo"
)

// Normalize returns an absolute, cleaned path without a trailing separator.
func Normalize(p string) string {
	if p == "" {
		return p
	}
	if isUNC(p) {
		return strings.TrimRight(filepath.Clean(p), `\/`)
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	p = filepath.Clean(p)
	if len(p) > 1 && !IsSystemRoot(p) {
		p = strings.TrimRight(p, string(filepath.Separator))
	}
	return p
}

// Canonical resolves symlinks where possible and falls back to Normalize.
func Canonical(p string) string {
	n := Normalize(p)
	if resolved, err := filepath.EvalSymlinks(n); err == nil {
		return Normalize(resolved)
	}
	return n
}

// IsSystemRoot reports whether p is a filesystem root such as "/" or `C:\`.
func IsSystemRoot(p string) bool {
	if p == "/" || p == `\` {
		return true
	}
	v := filepath.VolumeName(p)
	if v == "" || isUNC(p) {
		return false
	}
	rest := strings.TrimPrefix(p, v)
	return rest == "" || rest == `\` || rest == "/"
}

func isUNC(p string) bool {
	return strings.HasPrefix(p, `\\`) || strings.HasPrefix(p, "//")
}

var networkSchemes = []string{"smb://", "nfs://", "cifs://", "afp://", "sftp://"}

// Classifier detects network locations. The zero value recognizes only
// UNC paths and URL schemes.
type Classifier struct {
	NetworkMounts []string
}

// IsNetworkPath reports whether p lives on a remote filesystem.
func (c Classifier) IsNetworkPath(p string) bool {
	if isUNC(p) {
		return true
	}
	lower := strings.ToLower(p)
	for _, scheme := range networkSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	for _, mount := range c.NetworkMounts {
		if HasPathPrefix(p, mount) {
			return true
		}
	}
	return false
}

// IsNetworkPath uses the zero Classifier.
func IsNetworkPath(p string) bool {
	return Classifier{}.IsNetworkPath(p)
}

// HasPathPrefix reports whether p equals prefix or lies beneath it.
// The comparison is component aware: /data/a does not contain /data/ab.
func HasPathPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	p = filepath.Clean(p)
	prefix = filepath.Clean(prefix)
	if p == prefix {
		return true
	}
	if IsSystemRoot(prefix) {
		return strings.HasPrefix(p, prefix)
	}
	return strings.HasPrefix(p, prefix+string(filepath.Separator))
}

var networkFsTypes = []string{
	"nfs", "nfs4", "cifs", "smbfs", "smb3",
	"fuse.sshfs", "9p", "afpfs", "davfs", "ncpfs",
}

var getMounts = mountinfo.GetMounts

// DetectNetworkMounts returns mount points backed by network filesystems.
// It returns nil where the mount table cannot be read.
func DetectNetworkMounts() []string {
	infos, err := getMounts(mountinfo.FSTypeFilter(networkFsTypes...))
	if err != nil {
		return nil
	}
	mounts := make([]string, 0, len(infos))
	for _, info := range infos {
		mounts = append(mounts, info.Mountpoint)
	}
	return mounts
}

// FormatSize renders a byte count using IEC units.
func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
