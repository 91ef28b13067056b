package voicelane

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
)

func TestAudioAssembler_AccumulatesPerResponse(t *testing.T) {
	a := NewAudioAssembler()

	chunk1 := []byte{0x01, 0x02, 0x03, 0x04}
	chunk2 := []byte{0x05, 0x06}
	if err := a.OnDelta(AudioDelta{ResponseID: "r1", DeltaBase64: base64.StdEncoding.EncodeToString(chunk1)}); err != nil {
		t.Fatalf("OnDelta failed: %v", err)
	}
	if err := a.OnDelta(AudioDelta{ResponseID: "r1", DeltaBase64: base64.StdEncoding.EncodeToString(chunk2)}); err != nil {
		t.Fatalf("OnDelta failed: %v", err)
	}

	got := a.OnDone("r1")
	want := append(chunk1, chunk2...)
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: expected %x, got %x", i, want[i], got[i])
		}
	}

	if again := a.OnDone("r1"); len(again) != 0 {
		t.Errorf("expected buffer cleared after done, got %d bytes", len(again))
	}
}

func TestAudioAssembler_RejectsBadBase64(t *testing.T) {
	a := NewAudioAssembler()
	if err := a.OnDelta(AudioDelta{ResponseID: "r1", DeltaBase64: "!!not base64!!"}); err == nil {
		t.Fatal("expected error for malformed base64")
	}
}

func TestWAVFromPCM16Mono(t *testing.T) {
	pcm := make([]byte, 480) // 10ms at 24kHz
	wav := WAVFromPCM16Mono(pcm, DefaultSampleRate)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		t.Error("missing fmt/data chunks")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != DefaultSampleRate {
		t.Errorf("expected sample rate %d, got %d", DefaultSampleRate, rate)
	}
	if channels := binary.LittleEndian.Uint16(wav[22:24]); channels != 1 {
		t.Errorf("expected mono, got %d channels", channels)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Errorf("expected 16-bit samples, got %d", bits)
	}
	if dataLen := binary.LittleEndian.Uint32(wav[40:44]); dataLen != uint32(len(pcm)) {
		t.Errorf("expected data length %d, got %d", len(pcm), dataLen)
	}
}
