package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/yanun0323/errors"
)

const segmentExt = ".wal"

// segmentName sorts in write order: open time first, then the writer's segment id.
func segmentName(prefix string, openedAt time.Time, id uint64) string {
	return fmt.Sprintf("%s-%s-%06d%s", prefix, openedAt.UTC().Format("20060102T150405Z"), id, segmentExt)
}

// Segments lists the WAL segments with prefix in dir, oldest first.
func Segments(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list wal segments in %s", dir)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"-") || filepath.Ext(name) != segmentExt {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	slices.Sort(files)
	return files, nil
}

// segment is one open WAL file. A nil segment is valid and does nothing.
type segment struct {
	path     string
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

func createSegment(dir, prefix string, id *uint64, now time.Time, bufSize int) (*segment, error) {
	for {
		*id++
		path := filepath.Join(dir, segmentName(prefix, now, *id))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "create wal segment %s", path)
		}
		return &segment{
			path:     path,
			file:     file,
			buf:      bufio.NewWriterSize(file, bufSize),
			openedAt: now,
		}, nil
	}
}

// full reports whether adding n bytes would cross a rotation limit.
func (s *segment) full(cfg Config, now time.Time, n int64) bool {
	if s == nil {
		return true
	}
	if cfg.SegmentMaxBytes > 0 && s.size > 0 && s.size+n > cfg.SegmentMaxBytes {
		return true
	}
	return cfg.SegmentMaxDuration > 0 && now.Sub(s.openedAt) >= cfg.SegmentMaxDuration
}

func (s *segment) write(parts ...[]byte) error {
	for _, p := range parts {
		n, err := s.buf.Write(p)
		s.size += int64(n)
		if err != nil {
			return errors.Wrapf(err, "write wal segment %s", s.path)
		}
	}
	return nil
}

func (s *segment) flush() error {
	if s == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return errors.Wrapf(err, "flush wal segment %s", s.path)
	}
	return nil
}

func (s *segment) sync() error {
	if s == nil {
		return nil
	}
	if err := s.flush(); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync wal segment %s", s.path)
	}
	return nil
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	if err := s.sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	if err := s.file.Close(); err != nil {
		return errors.Wrapf(err, "close wal segment %s", s.path)
	}
	return nil
}
