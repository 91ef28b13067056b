package voicelane

import (
	"encoding/base64"
	"encoding/binary"
)

// DefaultSampleRate is the PCM16 sample rate used by the realtime provider.
const DefaultSampleRate = 24000

// AudioAssembler collects streaming assistant audio chunks keyed by response
// id and reassembles them into complete PCM16 buffers. The headless session
// runner uses this to record a session to disk.
type AudioAssembler struct{ data map[string][]byte }

// NewAudioAssembler creates a new AudioAssembler instance.
func NewAudioAssembler() *AudioAssembler { return &AudioAssembler{data: make(map[string][]byte)} }

// OnDelta decodes and appends one AudioDelta event.
func (a *AudioAssembler) OnDelta(e AudioDelta) error {
	b, err := base64.StdEncoding.DecodeString(e.DeltaBase64)
	if err != nil {
		return err
	}
	a.data[e.ResponseID] = append(a.data[e.ResponseID], b...)
	return nil
}

// OnDone retrieves and removes the complete audio for a response id.
func (a *AudioAssembler) OnDone(responseID string) []byte {
	buf := a.data[responseID]
	delete(a.data, responseID)
	return buf
}

// WAVFromPCM16Mono wraps raw 16-bit little-endian mono PCM in a WAV header.
func WAVFromPCM16Mono(pcm []byte, sampleRate int) []byte {
	blockAlign := uint16(2)
	byteRate := uint32(sampleRate) * uint32(blockAlign)
	dataLen := uint32(len(pcm))
	riffLen := 36 + dataLen
	out := make([]byte, 44+len(pcm))

	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], riffLen)
	copy(out[8:], "WAVE")

	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], 1) // mono
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], byteRate)
	binary.LittleEndian.PutUint16(out[32:], blockAlign)
	binary.LittleEndian.PutUint16(out[34:], 16)

	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], dataLen)
	copy(out[44:], pcm)
	return out
}
