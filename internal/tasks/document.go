package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	documentWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_document_writes_total",
			Help: "Total number of task document saves by result",
		},
		[]string{"result"},
	)

	documentsRecoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "task_documents_recovered_total",
			Help: "Unparsable task documents replaced by an empty document on load",
		},
	)
)

func init() {
	prometheus.MustRegister(documentWritesTotal, documentsRecoveredTotal)
}

// DocumentStore reads and writes whole task documents. Saves are atomic:
// readers see either the previous or the new file, never a partial one.
// There is no locking across a load/modify/save sequence, so concurrent
// writers to one namespace are last-writer-wins.
type DocumentStore struct {
	logger *slog.Logger
}

func NewDocumentStore(logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{logger: logger}
}

// Load returns the document at path. A missing file yields an empty
// document without creating anything.
//
// A file that cannot be decoded also yields an empty document and no
// error. Its tasks are lost on the next save.
func (s *DocumentStore) Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return emptyDocument(), nil
		}
		return Document{}, &StorageError{Op: "read", Path: path, Err: err}
	}

	doc, err := decodeDocument(data)
	if err != nil {
		documentsRecoveredTotal.Inc()
		s.logger.Warn("document_recovered",
			slog.String("path", path),
			slog.String("reason", err.Error()),
		)
		return emptyDocument(), nil
	}
	return doc, nil
}

func decodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	normalize(&doc)
	return doc, nil
}

// normalize restores next_id > every stored id and a non-nil task slice.
func normalize(doc *Document) {
	if doc.Tasks == nil {
		doc.Tasks = []Task{}
	}
	var maxID int64
	for _, t := range doc.Tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	if doc.NextID <= maxID {
		doc.NextID = maxID + 1
	}
	if doc.NextID < 1 {
		doc.NextID = 1
	}
}

// Save replaces the document at path: write a temp file in the same
// directory, fsync it, then rename it over the target.
func (s *DocumentStore) Save(path string, doc Document) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		documentWritesTotal.WithLabelValues(result).Inc()
	}()

	data, err := encodeDocument(doc)
	if err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	if err := mkdirAll(dir); err != nil {
		return err
	}
	return atomicWrite(path, data)
}

func encodeDocument(doc Document) ([]byte, error) {
	if doc.Tasks == nil {
		doc.Tasks = []Task{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return &StorageError{Op: "create temp", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &StorageError{Op: op, Path: path, Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write temp", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return fail("chmod temp", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync temp", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &StorageError{Op: "close temp", Path: path, Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &StorageError{Op: "rename", Path: path, Err: err}
	}

	// Persist the rename itself; not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
