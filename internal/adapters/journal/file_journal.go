package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// entry layout: [8 bytes id][4 bytes len][4 bytes crc32 of body][len bytes json record]
const entryHeaderLen = 16

const fileName = "records.log"

var ErrClosed = errors.New("journal: closed")

// FileJournal appends received records to a single log file. A torn or
// corrupt tail left by a crash is cut off when the journal is reopened.
type FileJournal struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	lastID    ports.JournalEntryID
	entries   uint64
	sizeBytes int64
	closed    bool
}

func Open(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	j := &FileJournal{path: path, file: f}
	if err := j.scan(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(j.sizeBytes, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	j.writer = bufio.NewWriterSize(f, 1<<16)
	return j, nil
}

// scan reads the file, keeps every intact entry and truncates the rest.
func (j *FileJournal) scan() error {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReader(j.file)
	var offset int64
	for {
		id, body, err := readEntry(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, errTorn) {
				break
			}
			return fmt.Errorf("journal scan: %w", err)
		}
		offset += entryHeaderLen + int64(len(body))
		j.lastID = id
		j.entries++
	}
	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.sizeBytes = offset
	return nil
}

var errTorn = errors.New("torn entry")

func readEntry(r io.Reader) (ports.JournalEntryID, []byte, error) {
	var hdr [entryHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errTorn
		}
		return 0, nil, err
	}
	id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
	length := binary.BigEndian.Uint32(hdr[8:12])
	sum := binary.BigEndian.Uint32(hdr[12:16])

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errTorn
		}
		return 0, nil, err
	}
	if crc32.ChecksumIEEE(body) != sum {
		return 0, nil, errTorn
	}
	return id, body, nil
}

func (j *FileJournal) Append(rec domain.Record) (ports.JournalEntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}
	return j.appendLocked(rec)
}

func (j *FileJournal) appendLocked(rec domain.Record) (ports.JournalEntryID, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}
	id := j.lastID + 1

	var hdr [entryHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	binary.BigEndian.PutUint32(hdr[12:16], crc32.ChecksumIEEE(body))

	if _, err := j.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := j.writer.Write(body); err != nil {
		return 0, err
	}
	j.lastID = id
	j.entries++
	j.sizeBytes += int64(len(hdr) + len(body))
	return id, nil
}

// WriteBatch appends records and flushes them, so the journal can act as a sink.
func (j *FileJournal) WriteBatch(records []domain.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	for _, rec := range records {
		if _, err := j.appendLocked(rec); err != nil {
			return err
		}
	}
	return j.writer.Flush()
}

func (j *FileJournal) Name() string { return "journal" }

// Iterate calls fn for every entry with an id of at least from, in order.
func (j *FileJournal) Iterate(from ports.JournalEntryID, fn func(id ports.JournalEntryID, rec domain.Record) error) error {
	j.mu.Lock()
	if !j.closed {
		if err := j.writer.Flush(); err != nil {
			j.mu.Unlock()
			return err
		}
	}
	size := j.sizeBytes
	j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(io.LimitReader(f, size))
	for {
		id, body, err := readEntry(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("journal iterate: %w", err)
		}
		if id < from {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return fmt.Errorf("journal entry %d: %w", id, err)
		}
		if err := fn(id, rec); err != nil {
			return err
		}
	}
}

func (j *FileJournal) Stats() ports.JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ports.JournalStats{
		Entries:   j.entries,
		LastID:    j.lastID,
		SizeBytes: j.sizeBytes,
	}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	ferr := j.writer.Flush()
	return errors.Join(ferr, j.file.Close())
}

var (
	_ ports.Journal = (*FileJournal)(nil)
	_ ports.Sink    = (*FileJournal)(nil)
)
