// Package mmap maps index files read-only into memory.
//
// Loading an index decodes directly from the mapping, so the page cache is
// shared between processes serving the same file. Platforms without mmap
// support, or filesystems that refuse the mapping, fall back to reading the
// whole file into the heap; callers see the same File either way.
package mmap
