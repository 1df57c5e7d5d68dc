package wire

import "fmt"

// Method tags the tunnelled request's HTTP-equivalent verb.
type Method uint8

const (
	MethodGet  Method = 1
	MethodPost Method = 2
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

// TunnelledRequest is the compact framing a constrained sensor uses to
// smuggle an HTTP-shaped request through a single LoRaWAN payload: a method
// tag, a length-prefixed URI, a length-prefixed body, and a length-prefixed
// header blob (opaque key:value lines, newline separated).
type TunnelledRequest struct {
	Method  Method
	URI     string
	Body    []byte
	Headers string
}

func (r TunnelledRequest) NeededSize() int {
	return TagSize + StringSize(r.URI) + BytesSize(r.Body) + StringSize(r.Headers)
}

func (r TunnelledRequest) ToBytes(buf []byte) (int, error) {
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	if _, err := putTag(uint8(r.Method), tagSlice); err != nil {
		return 0, err
	}
	if err := putString(&c, r.URI, buf); err != nil {
		return 0, err
	}
	if err := putBytes(&c, r.Body, buf); err != nil {
		return 0, err
	}
	if err := putString(&c, r.Headers, buf); err != nil {
		return 0, err
	}
	return c.end, nil
}

func TunnelledRequestFromBytes(buf []byte) (TunnelledRequest, error) {
	var r TunnelledRequest
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return r, err
	}
	tag, err := getTag(tagSlice)
	if err != nil {
		return r, err
	}
	switch Method(tag) {
	case MethodGet, MethodPost:
		r.Method = Method(tag)
	default:
		return r, fmt.Errorf("wire: unknown tunnelled request method tag %d", tag)
	}
	r.URI, err = getString(&c, buf)
	if err != nil {
		return r, err
	}
	r.Body, err = getBytes(&c, buf)
	if err != nil {
		return r, err
	}
	r.Headers, err = getString(&c, buf)
	return r, err
}
