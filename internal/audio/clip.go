package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"voxcanvas/internal/domain"
)

const (
	ContainerWebM = "webm"
	ContainerWAV  = "wav"

	DefaultSampleRate = 48000
)

// ClipAssembler joins captured fragments into a clip labelled for upload.
type ClipAssembler struct {
	container  string
	sampleRate int
	channels   int
}

func NewClipAssembler(container string, sampleRate int, channels int) *ClipAssembler {
	if container == "" {
		container = ContainerWebM
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return &ClipAssembler{container: container, sampleRate: sampleRate, channels: channels}
}

// Assemble concatenates fragments in arrival order. WAV clips are captured as
// raw PCM and framed here; WebM clips are already containerized by ffmpeg.
func (a *ClipAssembler) Assemble(fragments [][]byte) (domain.Clip, error) {
	size := 0
	for _, fragment := range fragments {
		size += len(fragment)
	}
	joined := make([]byte, 0, size)
	for _, fragment := range fragments {
		joined = append(joined, fragment...)
	}

	switch a.container {
	case ContainerWAV:
		clip := domain.Clip{MimeType: "audio/wav", Filename: "recording.wav"}
		if len(joined) == 0 {
			return clip, nil
		}
		data, err := EncodeWAV(joined, a.sampleRate, a.channels)
		if err != nil {
			return domain.Clip{}, err
		}
		clip.Data = data
		return clip, nil
	case ContainerWebM:
		return domain.Clip{Data: joined, MimeType: "audio/webm", Filename: "recording.webm"}, nil
	default:
		return domain.Clip{}, fmt.Errorf("unsupported audio container %q", a.container)
	}
}

// wavHeader is the canonical 44-byte PCM WAV header.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// EncodeWAV frames little-endian 16-bit PCM into a WAV file. A trailing
// partial frame is dropped.
func EncodeWAV(pcm []byte, sampleRate int, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	pcm = pcm[:len(pcm)-len(pcm)%blockAlign]
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}
