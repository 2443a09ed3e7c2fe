//go:build windows

package diskfree

import "golang.org/x/sys/windows"

// Bytes 返回 path 所在卷对当前用户可用的字节数。
func Bytes(path string) (uint64, error) {
	dir, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
