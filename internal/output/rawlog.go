package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const rawLogMagic = "ROMRAW01"

// ErrBadMagic is returned when a file is not a raw frame log.
var ErrBadMagic = errors.New("not a raw frame log")

// RawLogWriter appends ingested CBOR messages to a file, each prefixed by a
// 12-byte header: little-endian u64 unix nanoseconds and u32 payload length.
type RawLogWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 64*1024)
	if _, err := w.WriteString(rawLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RawLogWriter{
		f:    f,
		w:    w,
		path: filename,
	}, nil
}

// Path is the file being written.
func (r *RawLogWriter) Path() string {
	return r.path
}

func (r *RawLogWriter) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}

// RawRecord is one entry read back from a raw log.
type RawRecord struct {
	Index   int
	Time    time.Time
	Payload []byte
}

// ReadRawLog calls fn for every record in the file at path, in order.
// Iteration stops at the first error returned by fn. A record cut short by
// a crash ends the log with io.ErrUnexpectedEOF.
func ReadRawLog(path string, fn func(RawRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return readRawLog(bufio.NewReader(f), fn)
}

func readRawLog(r io.Reader, fn func(RawRecord) error) error {
	magic := make([]byte, len(rawLogMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(magic) != rawLogMagic {
		return fmt.Errorf("%w: magic %q", ErrBadMagic, magic)
	}
	var header [12]byte
	for i := 0; ; i++ {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("record %d header: %w", i, err)
		}
		ts := int64(binary.LittleEndian.Uint64(header[:8]))
		n := binary.LittleEndian.Uint32(header[8:12])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("record %d payload: %w", i, err)
		}
		if err := fn(RawRecord{Index: i, Time: time.Unix(0, ts), Payload: payload}); err != nil {
			return err
		}
	}
}
