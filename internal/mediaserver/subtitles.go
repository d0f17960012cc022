package mediaserver

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/ianaindex"
)

var srtTime = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}),(\d{3})`)

// LoadSubtitles reads a .srt or .vtt file and returns UTF-8 WebVTT, the only
// text track format receivers render.
func LoadSubtitles(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSubtitles: %w", err)
	}

	text, err := toUTF8(raw)
	if err != nil {
		return nil, fmt.Errorf("LoadSubtitles: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		return text, nil
	case ".srt":
		return srtToWebVTT(text)
	}
	return nil, fmt.Errorf("LoadSubtitles: unsupported subtitle format %q", filepath.Ext(path))
}

// toUTF8 guesses the charset of b and converts it.
func toUTF8(b []byte) ([]byte, error) {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))

	if isASCII(b) || utf8.Valid(b) {
		return b, nil
	}

	sample := b
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	guess, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || guess.Charset == "" || strings.EqualFold(guess.Charset, "UTF-8") {
		return b, nil
	}

	enc, err := ianaindex.IANA.Encoding(guess.Charset)
	if err != nil || enc == nil {
		// Not convertible; pass through and let the receiver cope.
		return b, nil
	}
	return enc.NewDecoder().Bytes(b)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func srtToWebVTT(srt []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("WEBVTT\n\n")

	scanner := bufio.NewScanner(bytes.NewReader(srt))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.Contains(line, " --> ") {
			line = srtTime.ReplaceAllString(line, "$1.$2")
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return buf.Bytes(), nil
}
