// Package cache implements the cached-module binary format of spec §6.3:
// a little-endian "<module_id>.cache" file the pipeline writes after a
// successful compile and consults before recompiling a module from source.
// Grounded on the teacher's internal/module/module.go cache map (same
// "check cache, else load and compile" shape) but replacing its in-memory,
// process-lifetime-only cache with the spec's on-disk binary layout,
// written atomically per spec §5 ("atomic-rename cache writes").
package cache

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"tsnc/internal/source"
	"tsnc/internal/types"
)

const (
	magic   = "TSNC"
	version = uint32(1)
)

// TypeRecord is one entry of the types[] table. The spec names the table
// without spelling out its fields ("see type layout below", truncated in
// the distilled spec); this layout carries exactly what a reader needs to
// reconstruct a types.DataType's registry-visible identity without
// recompiling: id, name, size, and the meta-flag bundle IsEqualTo compares.
type TypeRecord struct {
	ID       uint32
	Name     string
	Size     uint32
	HostHash uint64
	Meta     types.Meta
}

// FuncRecord is one entry of the funcs[] table: enough of a types.Function
// to relink a call without recompiling the callee.
type FuncRecord struct {
	ID             uint32
	Name           string
	AddressKind    uint8
	Address        uint64
	WrapperAddress uint64
}

// SourceMapEntry is one (line, col, length) triple per instruction, the
// instruction-to-source map spec §6.3 and §4.10 both reference.
type SourceMapEntry struct {
	Line, Col, Length uint32
}

// Dep is one entry of the deps[] table.
type Dep struct {
	ModuleID     uint32
	SourceMtime  int64
}

// Module is the full decoded contents of a .cache file, spec §6.3's layout
// minus the magic/version/checksum framing (which Read/Write handle).
type Module struct {
	SourceMtime int64
	SourceHash  uint64
	ModuleID    uint32
	ModuleName  string
	ModulePath  string
	Deps        []Dep
	Types       []TypeRecord
	Funcs       []FuncRecord
	SourceMap   []SourceMapEntry
}

// Path returns the on-disk path for id's cache file within dir, the
// "<module_id>.cache" naming convention of spec §6.3.
func Path(dir string, id source.ModuleID) string {
	return filepath.Join(dir, fmt.Sprintf("%d.cache", uint32(id)))
}

// Write serializes m to dir/<module_id>.cache, writing to a temp file and
// renaming over the final name so a reader never observes a partially
// written cache file (spec §5's atomic-rename cache writes).
func Write(dir string, m Module) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "cache: mkdir")
	}
	var buf bytes.Buffer
	if err := encode(&buf, m); err != nil {
		return err
	}
	checksum := source.HashContent(buf.Bytes())

	final := Path(dir, source.ModuleID(m.ModuleID))
	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%d.cache.*.tmp", m.ModuleID))
	if err != nil {
		return errors.Wrap(err, "cache: create temp file")
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(magic); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, version); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, checksum); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "cache: rename into place")
	}
	return nil
}

// Read loads and validates dir/<module_id>.cache, applying every rule of
// spec §6.3's "Readers must verify": magic, version, source_mtime against
// the live source file's mtime, and checksum. Any mismatch returns an
// error whose caller (the pipeline) recompiles from source rather than
// trusting the cache.
func Read(dir string, id source.ModuleID, sourceMtime time.Time) (Module, error) {
	final := Path(dir, id)
	data, err := os.ReadFile(final)
	if err != nil {
		return Module{}, err
	}
	if len(data) < len(magic)+4+8 {
		return Module{}, errors.New("cache: truncated file")
	}
	if string(data[:len(magic)]) != magic {
		return Module{}, errors.New("cache: bad magic")
	}
	r := bytes.NewReader(data[len(magic):])
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return Module{}, err
	}
	if v != version {
		return Module{}, errors.Errorf("cache: unsupported version %d", v)
	}

	payloadStart := len(magic) + 4
	payloadEnd := len(data) - 8
	if payloadEnd < payloadStart {
		return Module{}, errors.New("cache: truncated file")
	}
	payload := data[payloadStart:payloadEnd]
	wantChecksum := binary.LittleEndian.Uint64(data[payloadEnd:])
	gotChecksum := source.HashContent(payload)
	if wantChecksum != gotChecksum {
		return Module{}, errors.New("cache: checksum mismatch")
	}

	m, err := decode(bytes.NewReader(payload))
	if err != nil {
		return Module{}, err
	}
	if m.SourceMtime < sourceMtime.Unix() {
		return Module{}, errors.New("cache: stale (source modified after cache was written)")
	}
	return m, nil
}

func writeLP(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readLP(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func encode(w io.Writer, m Module) error {
	fields := []interface{}{m.SourceMtime, m.SourceHash, m.ModuleID}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if err := writeLP(w, m.ModuleName); err != nil {
		return err
	}
	if err := writeLP(w, m.ModulePath); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Deps))); err != nil {
		return err
	}
	for _, d := range m.Deps {
		if err := binary.Write(w, binary.LittleEndian, d); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Types))); err != nil {
		return err
	}
	for _, t := range m.Types {
		if err := binary.Write(w, binary.LittleEndian, t.ID); err != nil {
			return err
		}
		if err := writeLP(w, t.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, t.Size); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, t.HostHash); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, t.Meta); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Funcs))); err != nil {
		return err
	}
	for _, f := range m.Funcs {
		if err := binary.Write(w, binary.LittleEndian, f.ID); err != nil {
			return err
		}
		if err := writeLP(w, f.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, f.AddressKind); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, f.Address); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, f.WrapperAddress); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.SourceMap))); err != nil {
		return err
	}
	for _, s := range m.SourceMap {
		if err := binary.Write(w, binary.LittleEndian, s); err != nil {
			return err
		}
	}
	return nil
}

func decode(r *bytes.Reader) (Module, error) {
	var m Module
	if err := binary.Read(r, binary.LittleEndian, &m.SourceMtime); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.SourceHash); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.ModuleID); err != nil {
		return m, err
	}
	var err error
	if m.ModuleName, err = readLP(r); err != nil {
		return m, err
	}
	if m.ModulePath, err = readLP(r); err != nil {
		return m, err
	}

	var depCount uint32
	if err := binary.Read(r, binary.LittleEndian, &depCount); err != nil {
		return m, err
	}
	m.Deps = make([]Dep, depCount)
	for i := range m.Deps {
		if err := binary.Read(r, binary.LittleEndian, &m.Deps[i]); err != nil {
			return m, err
		}
	}

	var typeCount uint32
	if err := binary.Read(r, binary.LittleEndian, &typeCount); err != nil {
		return m, err
	}
	m.Types = make([]TypeRecord, typeCount)
	for i := range m.Types {
		t := &m.Types[i]
		if err := binary.Read(r, binary.LittleEndian, &t.ID); err != nil {
			return m, err
		}
		if t.Name, err = readLP(r); err != nil {
			return m, err
		}
		if err := binary.Read(r, binary.LittleEndian, &t.Size); err != nil {
			return m, err
		}
		if err := binary.Read(r, binary.LittleEndian, &t.HostHash); err != nil {
			return m, err
		}
		if err := binary.Read(r, binary.LittleEndian, &t.Meta); err != nil {
			return m, err
		}
	}

	var funcCount uint32
	if err := binary.Read(r, binary.LittleEndian, &funcCount); err != nil {
		return m, err
	}
	m.Funcs = make([]FuncRecord, funcCount)
	for i := range m.Funcs {
		f := &m.Funcs[i]
		if err := binary.Read(r, binary.LittleEndian, &f.ID); err != nil {
			return m, err
		}
		if f.Name, err = readLP(r); err != nil {
			return m, err
		}
		if err := binary.Read(r, binary.LittleEndian, &f.AddressKind); err != nil {
			return m, err
		}
		if err := binary.Read(r, binary.LittleEndian, &f.Address); err != nil {
			return m, err
		}
		if err := binary.Read(r, binary.LittleEndian, &f.WrapperAddress); err != nil {
			return m, err
		}
	}

	var mapCount uint32
	if err := binary.Read(r, binary.LittleEndian, &mapCount); err != nil {
		return m, err
	}
	m.SourceMap = make([]SourceMapEntry, mapCount)
	for i := range m.SourceMap {
		if err := binary.Read(r, binary.LittleEndian, &m.SourceMap[i]); err != nil {
			return m, err
		}
	}
	return m, nil
}
