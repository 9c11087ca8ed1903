// Package source produces the text items fed into the ingestion pipeline.
//
// A Source is opened once. Open fails with an error wrapping
// ErrSourceUnavailable when the input cannot be opened at all. The returned
// sequence yields one (text, nil) pair per item; an I/O error after some
// items were read is yielded once as ("", err) and ends the sequence.
package source

import (
	"bufio"
	"fmt"
	"iter"
	"os"
	"strings"
)

// Source is a finite, ordered supply of text items.
type Source interface {
	Open() (iter.Seq2[string, error], error)
}

// maxLineSize bounds a single input line.
const maxLineSize = 1024 * 1024

// SliceSource yields items from an in-memory list.
type SliceSource []string

// Open never fails for an in-memory list.
func (s SliceSource) Open() (iter.Seq2[string, error], error) {
	return func(yield func(string, error) bool) {
		for _, line := range s {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
	}, nil
}

// FileSource yields the lines of a newline-delimited text file.
type FileSource struct {
	Path string
}

// NewFileSource returns a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Open opens the file. The file is closed when the sequence ends or the
// consumer stops early.
func (s *FileSource) Open() (iter.Seq2[string, error], error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	return func(yield func(string, error) bool) {
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("reading %s: %w", s.Path, err))
		}
	}, nil
}
