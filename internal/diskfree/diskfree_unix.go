//go:build !windows

package diskfree

import "golang.org/x/sys/unix"

// Bytes 返回 path 所在文件系统对普通进程可用的字节数。
func Bytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
