package application

import (
	"bytes"
	"encoding/binary"

	"voice-agent/internal/domain"
)

const payloadBaseName = "user_audio"

// PackagePayload concatenates the captured chunks into one upload. Raw PCM
// gets a WAV header; already-encoded containers are passed through.
func PackagePayload(format domain.AudioFormat, chunks [][]byte) domain.Payload {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c...)
	}

	container := format.Container
	if container == "" || container == domain.ContainerPCM {
		data = wrapWAV(data, format)
		container = domain.ContainerWAV
	}

	return domain.Payload{
		Data:        data,
		Filename:    payloadBaseName + "." + string(container),
		ContentType: container.ContentType(),
	}
}

func wrapWAV(pcm []byte, format domain.AudioFormat) []byte {
	channels := format.Channels
	if channels == 0 {
		channels = 1
	}
	bitDepth := format.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	blockAlign := channels * bitDepth / 8
	byteRate := format.SampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitDepth))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
