package transcode

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAVHeader represents the fixed 44-byte header of a canonical PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data length
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * 2
	BlockAlign    uint16  // NumChannels * 2
	BitsPerSample uint16  // Always 16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV builds a canonical 16-bit PCM WAV file from per-channel float
// planes. Every plane must have the same length. Samples are clamped to
// [-1.0, 1.0] and scaled to signed 16-bit: negative values by 32768,
// non-negative values by 32767. Channels are interleaved sample-major.
func EncodeWAV(channels [][]float32, sampleRate int) ([]byte, error) {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	sampleCount := len(channels[0])
	for i, ch := range channels {
		if len(ch) != sampleCount {
			return nil, fmt.Errorf("channel %d has %d samples, expected %d", i, len(ch), sampleCount)
		}
	}

	numChannels := uint16(len(channels))
	dataSize := uint32(sampleCount * len(channels) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * 2,
		BlockAlign:    numChannels * 2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+int(dataSize)))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	// Sample-major outer loop, channel-major inner loop
	for i := 0; i < sampleCount; i++ {
		for _, ch := range channels {
			s := quantizeSample(ch[i])
			buf.WriteByte(byte(uint16(s)))
			buf.WriteByte(byte(uint16(s) >> 8))
		}
	}

	return buf.Bytes(), nil
}

// quantizeSample clamps a float sample to [-1.0, 1.0] and scales it to a
// signed 16-bit integer. -1.0 maps to -32768 and 1.0 maps to 32767.
func quantizeSample(v float32) int16 {
	if v < -1.0 {
		v = -1.0
	}
	if v > 1.0 {
		v = 1.0
	}

	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// ParseWAVHeader reads and validates the fixed header of a WAV file
func ParseWAVHeader(data []byte) (*WAVHeader, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	return &header, nil
}

// DecodeWAV decodes a canonical WAV file back into interleaved 16-bit
// samples plus its header, for inspection and testing.
func DecodeWAV(data []byte) ([]int16, *WAVHeader, error) {
	header, err := ParseWAVHeader(data)
	if err != nil {
		return nil, nil, err
	}

	numSamples := int(header.Subchunk2Size) / 2
	if numSamples <= 0 {
		return nil, nil, fmt.Errorf("no audio data found")
	}

	if len(data) < 44+numSamples*2 {
		return nil, nil, fmt.Errorf("WAV data truncated: header declares %d bytes, have %d",
			header.Subchunk2Size, len(data)-44)
	}

	samples := make([]int16, numSamples)
	if err := binary.Read(bytes.NewReader(data[44:]), binary.LittleEndian, samples); err != nil {
		return nil, nil, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return samples, header, nil
}

// WAVDuration calculates the duration of a WAV file in seconds
func WAVDuration(data []byte) (float64, error) {
	header, err := ParseWAVHeader(data)
	if err != nil {
		return 0, err
	}

	if header.SampleRate == 0 {
		return 0, fmt.Errorf("invalid sample rate: 0")
	}

	frames := header.Subchunk2Size / uint32(header.BlockAlign)
	return float64(frames) / float64(header.SampleRate), nil
}
