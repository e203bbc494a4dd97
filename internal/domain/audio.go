package domain

type Container string

const (
	ContainerPCM  Container = "pcm"
	ContainerWAV  Container = "wav"
	ContainerWebM Container = "webm"
	ContainerMP3  Container = "mp3"
	ContainerOgg  Container = "ogg"
)

// ContentType returns the MIME type used when uploading a payload in this
// container. Raw PCM is always wrapped as WAV before upload.
func (c Container) ContentType() string {
	switch c {
	case ContainerPCM, ContainerWAV:
		return "audio/wav"
	case ContainerWebM:
		return "audio/webm"
	case ContainerMP3:
		return "audio/mpeg"
	case ContainerOgg:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Container  Container
}

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
		Container:  ContainerPCM,
	}
}

// Payload is the single binary field uploaded for a turn.
type Payload struct {
	Data        []byte
	Filename    string
	ContentType string
}
