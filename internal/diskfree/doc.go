// Package diskfree 查询指定路径所在卷的可用空间，供缓存写入前的容量红线判断使用。
package diskfree
