// Package wav builds and parses the 16-bit PCM WAV files passed between the
// synthesis engines and the playback sinks.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// HeaderSize is the size of the canonical 44-byte WAV header.
const HeaderSize = 44

// FormatPCM is the audio format code for uncompressed PCM.
const FormatPCM = 1

// Piper emits raw 16-bit mono PCM at 22050 Hz.
const (
	PiperSampleRate    = 22050
	PiperChannels      = 1
	PiperBitsPerSample = 16
)

// ErrInvalid is returned for data that is not a PCM WAV file.
var ErrInvalid = errors.New("invalid WAV data")

// Header describes the PCM stream inside a WAV file.
type Header struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataSize      int
}

// Duration is the playing time of the data chunk.
func (h Header) Duration() time.Duration {
	bytesPerSecond := h.SampleRate * h.Channels * h.BitsPerSample / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(h.DataSize) * time.Second / time.Duration(bytesPerSecond)
}

// WrapRawPCM adds a WAV header to raw little-endian PCM data.
func WrapRawPCM(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	header := make([]byte, HeaderSize, HeaderSize+len(pcm))

	copy(header[0:4], "RIFF")
	PutLE32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	PutLE32(header[16:20], 16)
	PutLE16(header[20:22], FormatPCM)
	PutLE16(header[22:24], uint16(channels))
	PutLE32(header[24:28], uint32(sampleRate))
	PutLE32(header[28:32], uint32(sampleRate*channels*bitsPerSample/8))
	PutLE16(header[32:34], uint16(channels*bitsPerSample/8))
	PutLE16(header[34:36], uint16(bitsPerSample))

	copy(header[36:40], "data")
	PutLE32(header[40:44], uint32(len(pcm)))

	return append(header, pcm...)
}

// Decode walks the RIFF chunks of data and returns the PCM samples with
// their header. Chunks other than "fmt " and "data" are skipped.
func Decode(data []byte) ([]byte, Header, error) {
	var h Header
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, h, ErrInvalid
	}

	seenFmt := false
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Streaming writers leave the size at its maximum; trust the
			// data chunk to run to the end of the buffer.
			if id != "data" {
				return nil, h, fmt.Errorf("%w: truncated %q chunk", ErrInvalid, id)
			}
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, h, fmt.Errorf("%w: short fmt chunk", ErrInvalid)
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != FormatPCM {
				return nil, h, fmt.Errorf("%w: unsupported format %d", ErrInvalid, format)
			}
			h.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			h.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			h.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			seenFmt = true
		case "data":
			if !seenFmt {
				return nil, h, fmt.Errorf("%w: data before fmt", ErrInvalid)
			}
			h.DataSize = size
			return data[body : body+size], h, nil
		}
		off = body + size + size%2
	}
	return nil, h, fmt.Errorf("%w: no data chunk", ErrInvalid)
}

// PutLE16 writes v in little-endian order.
func PutLE16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// PutLE32 writes v in little-endian order.
func PutLE32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// Silence returns a WAV file holding d of 16-bit silence.
func Silence(d time.Duration, sampleRate, channels int) []byte {
	frames := int(d * time.Duration(sampleRate) / time.Second)
	return WrapRawPCM(make([]byte, frames*channels*2), sampleRate, channels, 16)
}
