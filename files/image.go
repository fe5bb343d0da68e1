package files

import (
	"bufio"
	"io"
	"strings"
)

const bytesPerImageLine = 8

// WriteImage writes img as a flat hex image, one line per 8-byte chunk:
//
//	0000: 30 F7 05 00 00 40
func WriteImage(w io.Writer, img []byte) error {
	bw := bufio.NewWriter(w)
	writeBytes(bw, img, bytesPerImageLine, "%04X: ")
	return bw.Flush()
}

// ReadImage parses a flat hex image written by WriteImage. The addresses
// must be consecutive starting at 0.
func ReadImage(r io.Reader) (img []byte, err error) {
	defer recoverError(&err)
	rd := newReader(r, "image")
	for rd.next() {
		if rd.text == "" {
			continue
		}
		addr, data, ok := strings.Cut(rd.text, ":")
		if !ok || len(addr) != 4 {
			rd.fail("address expected, found %q", rd.text)
		}
		if a := rd.hex16(addr); a != len(img) {
			rd.fail("address %04X, expected %04X", a, len(img))
		}
		tokens := strings.Fields(data)
		if len(tokens) == 0 || len(tokens) > bytesPerImageLine {
			rd.fail("1 to %d bytes per line expected, found %d", bytesPerImageLine, len(tokens))
		}
		for _, tok := range tokens {
			img = append(img, rd.hexByte(tok))
		}
	}
	return img, nil
}
