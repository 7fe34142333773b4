// Package audio converts between raw PCM chunks and WAV containers.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"scribe-mcp-gateway/internal/mcp"
)

var (
	// ErrMalformedPCM is returned when a chunk is not a whole number of frames.
	ErrMalformedPCM = errors.New("pcm length is not a multiple of the frame size")
	// ErrEmptyPCM is returned for zero-length chunks.
	ErrEmptyPCM = errors.New("pcm chunk is empty")
	// ErrUnsupportedEncoding is returned for encodings other than pcm.
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
	// ErrInvalidWAV is returned when a stream is not a PCM WAV file.
	ErrInvalidWAV = errors.New("not a valid PCM wav file")
)

const wavFormatPCM = 1

// ConvertPCMToWAV wraps pcm in a WAV container described by format.
func ConvertPCMToWAV(pcm []byte, format mcp.AudioFormat) ([]byte, error) {
	if format.Encoding != mcp.DefaultEncoding {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, format.Encoding)
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyPCM
	}
	frame := format.FrameSize()
	if frame <= 0 || len(pcm)%frame != 0 {
		return nil, fmt.Errorf("%w: %d bytes, frame %d", ErrMalformedPCM, len(pcm), frame)
	}

	samples, err := decodeSamples(pcm, format.SampleWidth)
	if err != nil {
		return nil, err
	}

	// The encoder patches the RIFF sizes on Close and needs a seekable writer.
	file, err := os.CreateTemp("", "scribe_chunk_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           samples,
		SourceBitDepth: format.SampleWidth * 8,
	}
	enc := wav.NewEncoder(file, format.SampleRate, format.SampleWidth*8, format.Channels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind wav: %w", err)
	}
	out, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return out, nil
}

// DecodeWAV reads a PCM WAV stream and returns its raw little-endian frames
// together with the format they are in.
func DecodeWAV(r io.ReadSeeker) ([]byte, mcp.AudioFormat, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, mcp.AudioFormat{}, ErrInvalidWAV
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, mcp.AudioFormat{}, fmt.Errorf("%w: format tag %d", ErrInvalidWAV, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, mcp.AudioFormat{}, fmt.Errorf("read pcm: %w", err)
	}

	format := mcp.AudioFormat{
		SampleRate:  int(dec.SampleRate),
		Channels:    int(dec.NumChans),
		SampleWidth: int(dec.BitDepth) / 8,
		Encoding:    mcp.DefaultEncoding,
	}
	pcm, err := encodeSamples(buf.Data, format.SampleWidth)
	if err != nil {
		return nil, mcp.AudioFormat{}, err
	}
	return pcm, format, nil
}

// decodeSamples turns little-endian PCM into integer samples. 8-bit WAV
// samples are unsigned and are kept as such.
func decodeSamples(pcm []byte, width int) ([]int, error) {
	n := len(pcm) / width
	samples := make([]int, n)
	for i := 0; i < n; i++ {
		b := pcm[i*width:]
		switch width {
		case 1:
			samples[i] = int(b[0])
		case 2:
			samples[i] = int(int16(binary.LittleEndian.Uint16(b)))
		case 3:
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= ^0xffffff
			}
			samples[i] = int(v)
		case 4:
			samples[i] = int(int32(binary.LittleEndian.Uint32(b)))
		default:
			return nil, fmt.Errorf("unsupported sample width %d", width)
		}
	}
	return samples, nil
}

func encodeSamples(samples []int, width int) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(samples) * width)
	for _, s := range samples {
		switch width {
		case 1:
			out.WriteByte(byte(s))
		case 2:
			out.Write(binary.LittleEndian.AppendUint16(nil, uint16(int16(s))))
		case 3:
			v := uint32(int32(s))
			out.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16)})
		case 4:
			out.Write(binary.LittleEndian.AppendUint32(nil, uint32(int32(s))))
		default:
			return nil, fmt.Errorf("unsupported sample width %d", width)
		}
	}
	return out.Bytes(), nil
}
