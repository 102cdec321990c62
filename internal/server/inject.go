package server

import (
	"bytes"
	"io"

	"golang.org/x/net/html"
)

// InjectScript inserts a script tag loading src before the closing body tag
// of doc. Documents without a body tag get the script appended. Every other
// byte of doc is preserved as written.
func InjectScript(doc []byte, src string) []byte {
	tag := []byte(`<script src="` + html.EscapeString(src) + `"></script>`)

	var out bytes.Buffer
	out.Grow(len(doc) + len(tag))

	z := html.NewTokenizer(bytes.NewReader(doc))
	injected := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				// Not something the tokenizer understands; leave it alone.
				return append(append([]byte(nil), doc...), tag...)
			}
			break
		}

		// TagName lowercases the token buffer in place, so copy first.
		raw := append([]byte(nil), z.Raw()...)
		if tt == html.EndTagToken && !injected {
			if name, _ := z.TagName(); string(name) == "body" {
				out.Write(tag)
				injected = true
			}
		}
		out.Write(raw)
	}

	if !injected {
		out.Write(tag)
	}
	return out.Bytes()
}
