package httpwire

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ParseRequest parses a raw HTTP/1.1 request (request-line, headers,
// blank line, optional body) such as one captured by a browser's proxy
// or hand-written for -R style seed files.
func ParseRequest(raw []byte) (Request, error) {
	r := bufio.NewReader(bytes.NewReader(raw))

	line, err := readLine(r)
	if err != nil {
		return Request{}, fmt.Errorf("read request line: %w", err)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return Request{}, fmt.Errorf("malformed request line: %q", line)
	}

	req := Request{Method: parts[0], Path: parts[1], Version: parts[2]}

	headers, err := readHeaders(r)
	if err != nil {
		return Request{}, err
	}
	req.Headers = headers

	body, err := readBody(r, headers)
	if err != nil {
		return Request{}, err
	}
	req.Body = body

	return req, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readHeaders(r *bufio.Reader) (Headers, error) {
	var headers Headers
	for {
		line, err := readLine(r)
		if err != nil {
			return headers, err
		}
		if line == "" {
			return headers, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return headers, fmt.Errorf("malformed header line: %q", line)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		headers = append(headers, Header{Key: key, Value: val})
	}
}

func readBody(r *bufio.Reader, headers Headers) ([]byte, error) {
	if cl := headers.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n <= 0 {
			return nil, nil
		}
		buf := make([]byte, n)
		read := 0
		for read < n {
			k, err := r.Read(buf[read:])
			read += k
			if err != nil {
				break
			}
		}
		return buf[:read], nil
	}

	// No Content-Length: take whatever remains (common for hand-written
	// seed files where the caller doesn't bother computing a length).
	rest, _ := r.Peek(r.Buffered())
	out := make([]byte, len(rest))
	copy(out, rest)
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Marshal renders the request back to raw HTTP/1.1 wire format. If
// Content-Length is absent and a non-empty body is present, it is
// computed and inserted.
func (r Request) Marshal() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s\r\n", r.Method, r.Path, versionOrDefault(r.Version))

	headers := r.Headers
	if len(r.Body) > 0 && headers.Get("Content-Length") == "" {
		headers = append(Headers(nil), r.Headers...)
		headers.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Key, h.Value)
	}
	b.WriteString("\r\n")
	b.Write(r.Body)
	return b.Bytes()
}

func versionOrDefault(v string) string {
	if v == "" {
		return "HTTP/1.1"
	}
	return v
}

// ParseResponse parses a raw HTTP/1.1 response (status line, headers,
// blank line, optional body).
func ParseResponse(raw []byte) (Response, error) {
	r := bufio.NewReader(bytes.NewReader(raw))

	line, err := readLine(r)
	if err != nil {
		return Response{}, fmt.Errorf("read status line: %w", err)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return Response{}, fmt.Errorf("malformed status line: %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return Response{}, fmt.Errorf("malformed status code: %q", parts[1])
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	resp := Response{Version: parts[0], StatusCode: code, Reason: reason}

	headers, err := readHeaders(r)
	if err != nil {
		return Response{}, err
	}
	resp.Headers = headers

	body, err := readBody(r, headers)
	if err != nil {
		return Response{}, err
	}
	resp.Body = body

	return resp, nil
}
