package utils

import "io"

type flushableWriter interface {
	Flush() error
}

type flushingWriter struct {
	delegate io.Writer
}

// NewFlushingWriter wraps a writer so each write is flushed immediately when
// the delegate supports flushing.
func NewFlushingWriter(delegate io.Writer) io.Writer {
	return flushingWriter{delegate: delegate}
}

func (writer flushingWriter) Write(data []byte) (int, error) {
	writtenBytes, writeError := writer.delegate.Write(data)
	if writeError != nil {
		return writtenBytes, writeError
	}
	if flushTarget, supportsFlush := writer.delegate.(flushableWriter); supportsFlush {
		if flushError := flushTarget.Flush(); flushError != nil {
			return writtenBytes, flushError
		}
	}
	return writtenBytes, nil
}
