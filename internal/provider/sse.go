// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
)

// =============================================================================
// SSE READER
// =============================================================================

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
const MaxEventSize = 64 * 1024

// SSEReader parses Server-Sent-Events frames of the form
// "data: <json>\n\n" from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadData reads the next event's data payload. Returns io.EOF when the
// stream ends. Non-data fields (event:, id:, retry:, comments) are ignored.
func (s *SSEReader) ReadData() ([]byte, error) {
	var dataLines [][]byte
	var size int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// Deliver a trailing event that was not terminated by a
				// blank line before reporting EOF.
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimSpace(line[5:])
			size += len(data)
			if size > MaxEventSize {
				return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "SSE event too large"}
			}
			dataLines = append(dataLines, data)
		}
	}
}

// =============================================================================
// EVENT STREAM
// =============================================================================

// readEvents decodes SSE frames into StreamEvents until the done marker, an
// inline error event, EOF, or context cancellation. The channel is closed
// when reading stops; transport failures are injected as events with Err set
// so consumers have a single exit path.
func readEvents(ctx context.Context, body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		data, err := reader.ReadData()
		if err != nil {
			if err == io.EOF {
				return
			}
			events <- StreamEvent{Err: err}
			return
		}

		var ev StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Skip malformed frames rather than killing the stream.
			continue
		}

		events <- ev

		if ev.Done || ev.ErrorText != "" {
			return
		}
	}
}
