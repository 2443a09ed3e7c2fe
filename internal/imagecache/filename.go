package imagecache

import (
	"hash/fnv"
	"regexp"
	"strconv"
)

// extensionPattern 捕获 URL 末尾最后一个 “.字母数字” 片段作为扩展名，
// 允许其后跟随查询串等非点字符。
var extensionPattern = regexp.MustCompile(`(\.[a-zA-Z0-9]+)[^.]*$`)

// FileName 根据 URL 推导缓存文件名：32 位哈希的绝对值（十进制）拼接扩展名。
// 提取不到扩展名时返回 false，表示该 URL 不可缓存。
func FileName(rawURL string) (string, bool) {
	m := extensionPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return strconv.Itoa(hashAbs32(rawURL)) + m[1], true
}

func hashAbs32(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	v := int(int32(h.Sum32()))
	if v < 0 {
		v = -v
	}
	return v
}
