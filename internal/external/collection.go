package external

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CollectionWriter appends or creates an osu! collection.db file. The format is a simple binary structure: an int32
// version, an int32 collection count, then per collection a length-
// prefixed name string and a beatmap-hash list.
//
// Strings in this format are length-prefixed with a 7-bit (ULEB128)
// varint. The handful of varint reads and writes here are short enough
// that they live inline rather than behind a dependency.
type CollectionWriter struct {
	Path string
}

type Collection struct {
	Name          string
	BeatmapHashes []string
}

const collectionFormatVersion int32 = 20220705

// WriteCollection appends a new named collection to the file at Path,
// creating it if necessary. Failure aborts with a non-nil error but leaves
// any already-written indexed copies in place.
func (w CollectionWriter) WriteCollection(name string, beatmapHashes []string) error {
	existing, err := w.readAll()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read existing collection.db: %w", err)
	}

	existing = append(existing, Collection{Name: name, BeatmapHashes: beatmapHashes})

	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return fmt.Errorf("create collection.db directory: %w", err)
	}

	var buf bytes.Buffer
	writeInt32(&buf, collectionFormatVersion)
	writeInt32(&buf, int32(len(existing)))
	for _, c := range existing {
		writeOsuString(&buf, c.Name)
		writeInt32(&buf, int32(len(c.BeatmapHashes)))
		for _, h := range c.BeatmapHashes {
			writeOsuString(&buf, h)
		}
	}

	if err := os.WriteFile(w.Path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write collection.db: %w", err)
	}
	return nil
}

func (w CollectionWriter) readAll() ([]Collection, error) {
	data, err := os.ReadFile(w.Path)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data)
	_ = readInt32(r) // version, not re-validated on append
	count := readInt32(r)

	collections := make([]Collection, 0, count)
	for i := int32(0); i < count; i++ {
		name, err := readOsuString(r)
		if err != nil {
			return nil, fmt.Errorf("read collection name: %w", err)
		}
		hashCount := readInt32(r)
		hashes := make([]string, 0, hashCount)
		for j := int32(0); j < hashCount; j++ {
			h, err := readOsuString(r)
			if err != nil {
				return nil, fmt.Errorf("read beatmap hash: %w", err)
			}
			hashes = append(hashes, h)
		}
		collections = append(collections, Collection{Name: name, BeatmapHashes: hashes})
	}
	return collections, nil
}

// CollectionNameFor encodes generated_at into a collection name.
func CollectionNameFor(generatedAt time.Time) string {
	return fmt.Sprintf("companella %s", generatedAt.Format("2006-01-02 15:04"))
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}

func readInt32(r *bytes.Reader) int32 {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(tmp[:]))
}

// writeOsuString encodes osu!'s string format: 0x00 for empty, else 0x0b
// followed by a ULEB128 byte-length and the UTF-8 bytes.
func writeOsuString(buf *bytes.Buffer, s string) {
	if s == "" {
		buf.WriteByte(0x00)
		return
	}
	buf.WriteByte(0x0b)
	writeULEB128(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readOsuString(r *bytes.Reader) (string, error) {
	marker, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if marker == 0x00 {
		return "", nil
	}

	length, err := readULEB128(r)
	if err != nil {
		return "", err
	}

	buf := make([]byte, length)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeULEB128(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func readULEB128(r *bytes.Reader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}
