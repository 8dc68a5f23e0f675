// Package mmap maps input files read-only into memory.
//
// The local store serves blob reads from a mapping, so the record readers of
// the pipeline scan large EQ and block files without copying them through
// kernel buffers. On platforms without mmap support the file is read into
// memory instead.
package mmap
