package retrieval

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/becomeliminal/docqa/core"
)

// partition is one (user, conversation) slice of the store: a flat index
// and its position-aligned metadata, backed by a single snapshot file.
// Holding index and metadata in one file is what makes their update
// atomic: the snapshot is replaced wholesale or not at all, so a reader
// can never observe a vector without its record or vice versa.
type partition struct {
	mu    sync.RWMutex
	path  string
	index *flatIndex
	meta  []core.ChunkRecord
}

const snapshotName = "partition.bin"

// Snapshot framing, all little-endian:
//
//	magic   [8]byte  "DOCQAPT1"
//	dim     uint32
//	count   uint32
//	vectors count*dim float32
//	metaLen uint32
//	meta    metaLen bytes of JSON-encoded []core.ChunkRecord
var snapshotMagic = [8]byte{'D', 'O', 'C', 'Q', 'A', 'P', 'T', '1'}

func newPartition(path string, dim int) *partition {
	return &partition{path: path, index: newFlatIndex(dim)}
}

// loadPartition reads a snapshot from disk. Returns (nil, nil) when no
// snapshot exists. A snapshot whose vector count and metadata length
// disagree, or that was written with a different dimension, is rejected
// with ErrCorruptPartition rather than partially loaded.
func loadPartition(path string, dim int) (*partition, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieval: read snapshot: %w", err)
	}

	r := bytes.NewReader(raw)
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic in %s", ErrCorruptPartition, path)
	}
	var gotDim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &gotDim); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptPartition, path)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptPartition, path)
	}
	if int(gotDim) != dim {
		return nil, fmt.Errorf("%w: snapshot dimension %d, store dimension %d", ErrCorruptPartition, gotDim, dim)
	}

	vecBytes := make([]byte, int(count)*dim*4)
	if _, err := io.ReadFull(r, vecBytes); err != nil {
		return nil, fmt.Errorf("%w: truncated vectors in %s", ErrCorruptPartition, path)
	}
	data := make([]float32, int(count)*dim)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(vecBytes[i*4:]))
	}

	var metaLen uint32
	if err := binary.Read(r, binary.LittleEndian, &metaLen); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptPartition, path)
	}
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return nil, fmt.Errorf("%w: truncated metadata in %s", ErrCorruptPartition, path)
	}
	var meta []core.ChunkRecord
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata JSON: %v", ErrCorruptPartition, err)
	}
	if len(meta) != int(count) {
		return nil, fmt.Errorf("%w: %d vectors but %d records in %s", ErrCorruptPartition, count, len(meta), path)
	}

	return &partition{
		path:  path,
		index: &flatIndex{dim: dim, data: data},
		meta:  meta,
	}, nil
}

// save writes the snapshot atomically: serialize to a temporary file in the
// same directory, fsync, then rename over the previous snapshot. The caller
// must hold the partition's write lock.
func (p *partition) save() error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create partition directory: %w", err)
	}

	metaBytes, err := json.Marshal(p.meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(snapshotMagic[:])
	binary.Write(&buf, binary.LittleEndian, uint32(p.index.dim))
	binary.Write(&buf, binary.LittleEndian, uint32(p.index.count()))
	vecBytes := make([]byte, len(p.index.data)*4)
	for i, f := range p.index.data {
		binary.LittleEndian.PutUint32(vecBytes[i*4:], math.Float32bits(f))
	}
	buf.Write(vecBytes)
	binary.Write(&buf, binary.LittleEndian, uint32(len(metaBytes)))
	buf.Write(metaBytes)

	tmp, err := os.CreateTemp(dir, snapshotName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}
