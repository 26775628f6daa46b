package runtime

import (
	"bufio"
	"bytes"
	"io"
)

// maxEventSize caps a single SSE line; values snapshots carry the whole
// transcript, so it is generous.
const maxEventSize = 8 * 1024 * 1024

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

// ReadEvent returns the next event name and its data lines joined by '\n'.
// It returns io.EOF once the stream is exhausted.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var (
		event     string
		dataLines [][]byte
		size      int
	)

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(err == io.EOF && len(line) > 0) {
			if err == io.EOF && (len(dataLines) > 0 || event != "") {
				return event, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}

		size += len(line)
		if size > maxEventSize {
			return "", nil, bufio.ErrTooLong
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) > 0 || event != "" {
				return event, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case line[0] == ':':
			// comment / keep-alive
		case bytes.HasPrefix(line, []byte("event:")):
			event = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := line[len("data:"):]
			if len(data) > 0 && data[0] == ' ' {
				data = data[1:]
			}
			dataLines = append(dataLines, bytes.Clone(data))
		}
	}
}
