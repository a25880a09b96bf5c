// Package snapshot converts HTTP responses to and from their stored
// representation. A snapshot is the plain HTTP/1.1 wire format of the
// response: status line, headers and body bytes. No host-specific framing
// is kept, so snapshots survive upgrades of the surrounding code.
package snapshot

import (
	"bufio"
	"bytes"
	"net/http"
)

// ResponseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response.
// The response body is consumed and replaced, so the response
// can still be sent to a client after the call.
func ResponseToBytes(res *http.Response) ([]byte, error) {
	// write response to buffer
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	// set response body back
	bts := buf.Bytes()
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clonedRes.Body
	// return buffer bytes
	return bts, nil
}

// BytesToResponse converts a stored snapshot back to a http.Response.
// The given request is attached as the response's originating request.
func BytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}
