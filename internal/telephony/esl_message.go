package telephony

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// eslMessage is one event-socket frame: a block of "Key: Value" headers
// terminated by a blank line, optionally followed by Content-Length bytes of
// body (api responses and event dumps).
type eslMessage struct {
	headers []eslHeader
	body    string
}

type eslHeader struct {
	key   string
	value string
}

func (m eslMessage) get(key string) string {
	for _, h := range m.headers {
		if strings.EqualFold(h.key, key) {
			return h.value
		}
	}
	return ""
}

func (m eslMessage) contentType() string { return m.get("Content-Type") }
func (m eslMessage) replyText() string   { return m.get("Reply-Text") }

// readESLMessage reads one frame from the socket stream.
func readESLMessage(r *bufio.Reader) (eslMessage, error) {
	var msg eslMessage

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return eslMessage{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		// Blank line ends the header block.
		if line == "" {
			break
		}

		idx := strings.Index(line, ": ")
		if idx < 0 {
			// The socket banner and stray lines carry no colon; skip them
			// unless a header block is already open.
			if len(msg.headers) == 0 {
				continue
			}
			msg.headers = append(msg.headers, eslHeader{key: "", value: line})
			continue
		}
		msg.headers = append(msg.headers, eslHeader{key: line[:idx], value: line[idx+2:]})
	}

	if cl := msg.get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return eslMessage{}, fmt.Errorf("telephony: bad Content-Length %q", cl)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return eslMessage{}, err
		}
		msg.body = string(body)
	}
	return msg, nil
}

// parseBodyHeaders parses a "Key: Value" body (uuid_dump output) into a map.
// Values are URL-encoded by the switch for some keys; callers that need those
// keys decode them explicitly.
func parseBodyHeaders(body string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		out[line[:idx]] = line[idx+2:]
	}
	return out
}
