// Package textenc identifies the character encoding of uploaded text files and
// transcodes them to UTF-8.
package textenc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Labels reported for the encodings recognised without statistical detection.
const (
	UTF8    = "UTF-8"
	UTF16LE = "UTF-16LE"
	UTF16BE = "UTF-16BE"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// ErrUndetectable is returned when no encoding could be identified for a buffer.
var ErrUndetectable = errors.New("encoding could not be detected")

// Detection is the best guess for a buffer's encoding.
type Detection struct {
	Charset    string `json:"charset"`
	Confidence int    `json:"confidence"`
	BOM        bool   `json:"bom"`
}

// IsUTF8 reports whether the detected label names UTF-8.
func (d Detection) IsUTF8() bool {
	return strings.EqualFold(d.Charset, UTF8) || strings.EqualFold(d.Charset, "utf8")
}

// Detect inspects buf and returns its most likely encoding.
func Detect(buf []byte) (Detection, error) {
	switch {
	case bytes.HasPrefix(buf, bomUTF8):
		return Detection{Charset: UTF8, Confidence: 100, BOM: true}, nil
	case bytes.HasPrefix(buf, bomUTF16LE):
		return Detection{Charset: UTF16LE, Confidence: 100, BOM: true}, nil
	case bytes.HasPrefix(buf, bomUTF16BE):
		return Detection{Charset: UTF16BE, Confidence: 100, BOM: true}, nil
	}

	if utf8.Valid(buf) {
		return Detection{Charset: UTF8, Confidence: 100}, nil
	}

	result, err := chardet.NewTextDetector().DetectBest(buf)
	if err != nil {
		return Detection{}, fmt.Errorf("detect charset: %w", err)
	}
	if result == nil || result.Charset == "" {
		return Detection{}, ErrUndetectable
	}
	return Detection{Charset: result.Charset, Confidence: result.Confidence}, nil
}

// Decode returns buf as UTF-8 text. UTF-8 input is used as is (minus its BOM);
// anything else is transcoded from the detected encoding.
func Decode(buf []byte) (string, Detection, error) {
	det, err := Detect(buf)
	if err != nil {
		return "", Detection{}, err
	}

	if det.IsUTF8() {
		return string(bytes.TrimPrefix(buf, bomUTF8)), det, nil
	}

	enc, err := lookup(det.Charset)
	if err != nil {
		return "", det, err
	}

	out, err := enc.NewDecoder().Bytes(buf)
	if err != nil {
		return "", det, fmt.Errorf("transcode %s: %w", det.Charset, err)
	}
	if !utf8.Valid(out) {
		return "", det, fmt.Errorf("transcode %s: output is not valid utf-8", det.Charset)
	}
	return string(out), det, nil
}

func lookup(label string) (encoding.Encoding, error) {
	switch strings.ToUpper(label) {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), nil
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), nil
	}

	if enc, err := htmlindex.Get(label); err == nil && enc != nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc, nil
}
