package assemble

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/hyacinthus/mp3join"
)

// JoinMP3 joins MP3 payloads frame by frame into a single stream. Unlike
// [Concat] it drops each payload's ID3 tags and Xing/VBRI header so players
// report one continuous track.
func JoinMP3(parts [][]byte) ([]byte, error) {
	joiner := mp3join.New()
	for i, p := range parts {
		if err := joiner.Append(bytes.NewReader(p)); err != nil {
			return nil, fmt.Errorf("assemble: append part %d: %w", i, err)
		}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, joiner.Reader()); err != nil {
		return nil, fmt.Errorf("assemble: read joined stream: %w", err)
	}
	if buf.Len() == 0 {
		return nil, errors.New("assemble: joined stream is empty")
	}
	return buf.Bytes(), nil
}

// bytesPerSample is the size of one decoded stereo 16-bit sample frame.
const bytesPerSample = 4

// ProbeDuration decodes the MP3 headers of audio and returns its play time.
func ProbeDuration(audio []byte) (time.Duration, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return 0, fmt.Errorf("assemble: decode mp3: %w", err)
	}
	rate := dec.SampleRate()
	if rate <= 0 {
		return 0, errors.New("assemble: mp3 reports no sample rate")
	}
	samples := dec.Length() / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(rate), nil
}
