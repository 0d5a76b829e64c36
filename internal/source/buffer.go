// Package source owns source text and maps byte offsets to (line, column,
// length), per spec §3's "Source unit" and §2 component 2.
package source

import (
	"hash/fnv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ModuleID is the stable 32-bit id derived from a module's canonical path
// (spec §3, §4.4).
type ModuleID uint32

// Buffer is an immutable source unit: bytes, an interned path, and a
// modification timestamp.
type Buffer struct {
	Path    string
	ModTime time.Time
	text    []byte
	id      ModuleID
	hash    uint64
	lines   []int // byte offset of the start of each line
}

// New builds a Buffer and pre-computes its line-start table, id, and hash.
func New(path string, text []byte, modTime time.Time) *Buffer {
	b := &Buffer{Path: path, ModTime: modTime, text: text}
	b.id = HashPath(path)
	b.hash = HashContent(text)
	b.lines = append(b.lines, 0)
	for i, c := range text {
		if c == '\n' {
			b.lines = append(b.lines, i+1)
		}
	}
	return b
}

func (b *Buffer) Text() []byte   { return b.text }
func (b *Buffer) ID() ModuleID   { return b.id }
func (b *Buffer) Hash() uint64   { return b.hash }
func (b *Buffer) Len() int       { return len(b.text) }
func (b *Buffer) Slice(off, length int) string { return string(b.text[off : off+length]) }

// Location is a byte offset resolved to 1-based line/column plus a length,
// the granularity every Token and Diagnostic in the pipeline carries.
type Location struct {
	File   string
	Offset int
	Length int
	Line   int
	Column int
}

// Locate resolves a byte offset into (line, column), 1-based, using a binary
// search over the precomputed line-start table.
func (b *Buffer) Locate(offset, length int) Location {
	lo, hi := 0, len(b.lines)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if b.lines[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	line := lo + 1
	col := offset - b.lines[lo] + 1
	return Location{File: b.Path, Offset: offset, Length: length, Line: line, Column: col}
}

// LineText returns the raw text of a 1-based line number, used to render the
// source-snippet caret line in diagnostics (spec §6.2).
func (b *Buffer) LineText(line int) string {
	if line < 1 || line > len(b.lines) {
		return ""
	}
	start := b.lines[line-1]
	end := len(b.text)
	if line < len(b.lines) {
		end = b.lines[line] - 1
	}
	if end > 0 && end <= len(b.text) && b.text[end-1] == '\r' {
		end--
	}
	return string(b.text[start:end])
}

// HashPath derives the stable 32-bit module id from a canonicalized path
// (spec §3). FNV-1a is used verbatim for this: it is a 32-bit
// non-cryptographic path hash, a shape no third-party library in the
// retrieval pack offers (see DESIGN.md).
func HashPath(path string) ModuleID {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return ModuleID(h.Sum32())
}

// HashContent computes the 64-bit content digest used for the cache format's
// source_hash field (spec §6.3) and for checksum verification, using
// BLAKE2b truncated to 64 bits.
func HashContent(text []byte) uint64 {
	sum := blake2b.Sum512(text)
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(sum[i])
	}
	return v
}
