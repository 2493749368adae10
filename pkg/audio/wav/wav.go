// Package wav implements the RIFF/WAVE codec used at the transcription and
// speech-synthesis boundaries.
//
// Encode always produces the canonical 44-byte header followed by 16-bit
// signed little-endian PCM. Decode accepts integer PCM at 8 or 16 bits per
// sample and IEEE float at 32 bits per sample, skipping any chunk other than
// "fmt " and "data" by its declared size.
//
// Samples are float32 values normalised to [-1, 1]. Multi-channel audio is
// interleaved.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// HeaderSize is the length of the canonical header written by Encode.
	HeaderSize = 44

	formatPCM   = 1
	formatFloat = 3

	bitsPerSample = 16
)

var (
	// ErrDecode is returned when the input is not a well-formed RIFF/WAVE
	// buffer: missing magic, truncated chunk headers, or no data chunk.
	ErrDecode = errors.New("wav: decode error")

	// ErrUnsupportedFormat is returned when the fmt chunk declares a
	// format tag and bit depth combination Decode cannot convert.
	ErrUnsupportedFormat = errors.New("wav: unsupported format")
)

// Audio is a decoded sample sequence together with its format parameters.
type Audio struct {
	// Samples holds interleaved float samples in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// Duration returns the playback length of a.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	frames := len(a.Samples) / a.Channels
	return time.Duration(frames) * time.Second / time.Duration(a.SampleRate)
}

// Encode wraps samples in a canonical 16-bit PCM RIFF/WAVE container. Each
// sample is clamped to [-1, 1] and scaled with rounding. The declared RIFF
// and data sizes always match the payload length exactly.
func Encode(samples []float32, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, HeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[HeaderSize+i*2:], uint16(FloatToPCM16(s)))
	}
	return buf
}

// fmtChunk holds the fields of the "fmt " chunk Decode cares about.
type fmtChunk struct {
	tag        uint16
	channels   uint16
	sampleRate uint32
	bits       uint16
}

// Decode parses a RIFF/WAVE buffer into float samples.
//
// It fails with ErrDecode when the RIFF/WAVE magic is absent, when a chunk
// header is truncated, or when no data chunk is present, and with
// ErrUnsupportedFormat for anything other than PCM 8/16-bit or float 32-bit.
func Decode(data []byte) (Audio, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Audio{}, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrDecode)
	}

	var (
		format  *fmtChunk
		payload []byte
		found   bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// Streamed writers sometimes leave the data size unset; take what
			// is there rather than reject a playable buffer.
			if id == "data" {
				size = len(data) - body
			} else {
				return Audio{}, fmt.Errorf("%w: chunk %q overruns buffer", ErrDecode, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Audio{}, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrDecode, size)
			}
			format = &fmtChunk{
				tag:        binary.LittleEndian.Uint16(data[body : body+2]),
				channels:   binary.LittleEndian.Uint16(data[body+2 : body+4]),
				sampleRate: binary.LittleEndian.Uint32(data[body+4 : body+8]),
				bits:       binary.LittleEndian.Uint16(data[body+14 : body+16]),
			}
		case "data":
			payload = data[body : body+size]
			found = true
		}

		// Chunks are word aligned.
		pos = body + size + size%2
	}

	if format == nil {
		return Audio{}, fmt.Errorf("%w: no fmt chunk", ErrDecode)
	}
	if !found {
		return Audio{}, fmt.Errorf("%w: no data chunk", ErrDecode)
	}

	samples, err := convert(payload, format.tag, format.bits)
	if err != nil {
		return Audio{}, err
	}
	return Audio{
		Samples:    samples,
		SampleRate: int(format.sampleRate),
		Channels:   int(format.channels),
	}, nil
}

func convert(payload []byte, tag, bits uint16) ([]float32, error) {
	switch {
	case tag == formatPCM && bits == 8:
		out := make([]float32, len(payload))
		for i, b := range payload {
			out[i] = (float32(b) - 128) / 128
		}
		return out, nil
	case tag == formatPCM && bits == 16:
		return PCM16ToFloat(payload), nil
	case tag == formatFloat && bits == 32:
		n := len(payload) / 4
		out := make([]float32, n)
		for i := range n {
			v := math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
			out[i] = clamp(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: format tag %d at %d bits", ErrUnsupportedFormat, tag, bits)
	}
}

// PCM16ToFloat converts 16-bit signed little-endian PCM to float samples.
// A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

// FloatToPCM16 clamps s to [-1, 1] and scales it to the signed 16-bit range
// with rounding. The scale matches PCM16ToFloat so a round trip is off by at
// most one quantization step.
func FloatToPCM16(s float32) int16 {
	v := math.Round(float64(clamp(s)) * 32768)
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	return int16(v)
}

func clamp(s float32) float32 {
	switch {
	case s != s: // NaN
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
