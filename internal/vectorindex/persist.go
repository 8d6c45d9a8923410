package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"rag-chatbot-backend/models"

	"github.com/google/uuid"
)

const (
	vectorFileExt = ".vec"
	metaFileExt   = ".meta.json"

	formatVersion = 1
)

var vectorMagic = [4]byte{'R', 'A', 'G', 'V'}

type vectorHeader struct {
	Magic      [4]byte
	Version    uint16
	_          uint16
	Count      uint32
	Dims       uint32
	Generation uuid.UUID
}

type indexMeta struct {
	Version    int          `json:"version"`
	Generation string       `json:"generation"`
	Model      string       `json:"model"`
	Dimensions int          `json:"dimensions"`
	Count      int          `json:"count"`
	CreatedAt  time.Time    `json:"created_at"`
	Records    []metaRecord `json:"records"`
}

type metaRecord struct {
	Key      string            `json:"key"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type loadedIndex struct {
	generation string
	model      string
	dims       int
	records    []record
}

// VectorPath and MetaPath name the two artifacts of a flat index.
func VectorPath(dir, name string) string { return filepath.Join(dir, name+vectorFileExt) }
func MetaPath(dir, name string) string   { return filepath.Join(dir, name+metaFileExt) }

// Exists reports whether both artifacts of a flat index are present.
func Exists(dir, name string) bool {
	for _, p := range []string{VectorPath(dir, name), MetaPath(dir, name)} {
		if fi, err := os.Stat(p); err != nil || !fi.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// encodeMeta serializes the metadata side table.
var encodeMeta = func(w io.Writer, meta *indexMeta) error {
	return json.NewEncoder(w).Encode(meta)
}

// writeFlat stages both artifacts as synced temp files before renaming either
// into place, so a failed write leaves the previous index untouched. Both
// carry a fresh generation token, which is returned.
func writeFlat(dir, name, model string, dims int, records []record) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create index directory: %w", err)
	}

	generation := uuid.New()

	vecTmp, err := stageFile(VectorPath(dir, name), func(w io.Writer) error {
		header := vectorHeader{
			Magic:      vectorMagic,
			Version:    formatVersion,
			Count:      uint32(len(records)),
			Dims:       uint32(dims),
			Generation: generation,
		}
		if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
			return err
		}
		for _, r := range records {
			if err := binary.Write(w, binary.LittleEndian, r.embedding); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("write vector file: %w", err)
	}

	meta := indexMeta{
		Version:    formatVersion,
		Generation: generation.String(),
		Model:      model,
		Dimensions: dims,
		Count:      len(records),
		CreatedAt:  time.Now().UTC(),
		Records:    make([]metaRecord, len(records)),
	}
	for i, r := range records {
		meta.Records[i] = metaRecord{Key: r.key, Content: r.chunk.Content, Metadata: r.chunk.Metadata}
	}
	metaTmp, err := stageFile(MetaPath(dir, name), func(w io.Writer) error {
		return encodeMeta(w, &meta)
	})
	if err != nil {
		os.Remove(vecTmp)
		return "", fmt.Errorf("write metadata file: %w", err)
	}

	if err := os.Rename(vecTmp, VectorPath(dir, name)); err != nil {
		os.Remove(vecTmp)
		os.Remove(metaTmp)
		return "", fmt.Errorf("install vector file: %w", err)
	}
	if err := os.Rename(metaTmp, MetaPath(dir, name)); err != nil {
		os.Remove(metaTmp)
		return "", fmt.Errorf("install metadata file: %w", err)
	}

	return generation.String(), nil
}

// writeAtomic replaces path with the output of write through a temp file.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := stageFile(path, write)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// stageFile writes a synced temp file next to path and returns its name. The
// temp file is removed when any step fails.
func stageFile(path string, write func(io.Writer) error) (name string, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		return "", err
	}
	if err = bw.Flush(); err != nil {
		return "", err
	}
	if err = tmp.Sync(); err != nil {
		return "", err
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

func readFlat(dir, name string) (*loadedIndex, error) {
	meta, err := readMeta(MetaPath(dir, name))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(VectorPath(dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexAbsent, err)
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var header vectorHeader
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: read vector header: %w", ErrIndexAbsent, err)
	}
	if header.Magic != vectorMagic || header.Version != formatVersion {
		return nil, fmt.Errorf("%w: unknown vector file format", ErrIndexAbsent)
	}
	if header.Generation.String() != meta.Generation {
		return nil, fmt.Errorf("%w: vector file generation %s does not match metadata %s", ErrIndexAbsent, header.Generation, meta.Generation)
	}
	count, dims := int(header.Count), int(header.Dims)
	if count != meta.Count || count != len(meta.Records) || dims != meta.Dimensions {
		return nil, fmt.Errorf("%w: vector file holds %dx%d, metadata %dx%d", ErrIndexAbsent, count, dims, len(meta.Records), meta.Dimensions)
	}

	records := make([]record, count)
	for i := range records {
		embedding := make([]float32, dims)
		if err := binary.Read(br, binary.LittleEndian, embedding); err != nil {
			return nil, fmt.Errorf("%w: read vector %d: %w", ErrIndexAbsent, i, err)
		}
		m := meta.Records[i]
		r := newRecord(models.Chunk{Content: m.Content, Metadata: m.Metadata}, embedding)
		r.key = m.Key
		records[i] = r
	}
	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data in vector file", ErrIndexAbsent)
	}

	return &loadedIndex{
		generation: meta.Generation,
		model:      meta.Model,
		dims:       dims,
		records:    records,
	}, nil
}

func readMeta(path string) (*indexMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexAbsent, err)
	}
	var meta indexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %w", ErrIndexAbsent, err)
	}
	if meta.Version != formatVersion {
		return nil, fmt.Errorf("%w: metadata version %d", ErrIndexAbsent, meta.Version)
	}
	return &meta, nil
}

func readFlatGeneration(dir, name string) (string, error) {
	f, err := os.Open(MetaPath(dir, name))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIndexAbsent, err)
	}
	defer f.Close()

	var head struct {
		Generation string `json:"generation"`
	}
	if err := json.NewDecoder(f).Decode(&head); err != nil {
		return "", fmt.Errorf("%w: decode metadata: %w", ErrIndexAbsent, err)
	}
	return head.Generation, nil
}
