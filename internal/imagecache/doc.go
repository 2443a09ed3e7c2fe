// Package imagecache implements the on-disk store for remotely fetched
// images. Each instance owns one directory; file names are derived from the
// source URL alone (32-bit hash plus trailing extension), so lookups need no
// index or manifest and survive process restarts. Two distinct URLs can
// collide on the same derived name; that is a known limit of the naming
// scheme, documented here rather than worked around. Every operation is best
// effort: failures are logged and absorbed so a broken cache degrades the
// caller silently instead of breaking it.
package imagecache
