// Package clustertest provides in-process mock cluster nodes for
// testing, speaking just enough of the redis serialization protocol to
// serve a redigo client: it decodes request arrays and encodes the
// reply value returned by the test's handler.
package clustertest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Error is a reply value encoded as a protocol error reply.
type Error string

// Simple is a reply value encoded as a simple string reply ("+OK").
type Simple string

var errBadRequest = errors.New("clustertest: malformed request")

// decodeRequest reads one client request: an array of bulk strings,
// which is the only request form a redigo client sends.
func decodeRequest(br *bufio.Reader) ([]string, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[0] != '*' {
		return nil, errBadRequest
	}
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n < 1 {
		return nil, errBadRequest
	}

	args := make([]string, n)
	for i := 0; i < n; i++ {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if len(line) < 2 || line[0] != '$' {
			return nil, errBadRequest
		}
		size, err := strconv.Atoi(string(line[1:]))
		if err != nil || size < 0 {
			return nil, errBadRequest
		}
		buf := make([]byte, size+2) // including trailing CRLF
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, errBadRequest
	}
	return line[:len(line)-2], nil
}

// encodeReply writes the handler's return value as a protocol reply.
func encodeReply(w io.Writer, v interface{}) error {
	switch v := v.(type) {
	case nil:
		_, err := io.WriteString(w, "$-1\r\n")
		return err
	case Error:
		_, err := fmt.Fprintf(w, "-%s\r\n", string(v))
		return err
	case Simple:
		_, err := fmt.Fprintf(w, "+%s\r\n", string(v))
		return err
	case int:
		_, err := fmt.Fprintf(w, ":%d\r\n", v)
		return err
	case int64:
		_, err := fmt.Fprintf(w, ":%d\r\n", v)
		return err
	case string:
		return encodeBulk(w, []byte(v))
	case []byte:
		return encodeBulk(w, v)
	case []string:
		if _, err := fmt.Fprintf(w, "*%d\r\n", len(v)); err != nil {
			return err
		}
		for _, el := range v {
			if err := encodeBulk(w, []byte(el)); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		if _, err := fmt.Fprintf(w, "*%d\r\n", len(v)); err != nil {
			return err
		}
		for _, el := range v {
			if err := encodeReply(w, el); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("clustertest: cannot encode %T", v)
	}
}

func encodeBulk(w io.Writer, b []byte) error {
	if _, err := fmt.Fprintf(w, "$%d\r\n", len(b)); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
