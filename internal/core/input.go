package core

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// cleanInput prepares an upload for the CSV parser. A UTF-8 byte order
// mark is dropped, a UTF-16 one switches decoding to UTF-16, and invalid
// UTF-8 becomes U+FFFD.
func cleanInput(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
