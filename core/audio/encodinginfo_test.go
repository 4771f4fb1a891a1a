package audio

import "testing"

func TestDefaultEncodingInfo(t *testing.T) {
	info := GetDefaultEncodingInfo()
	if info.IsZero() {
		t.Fatalf("expected default encoding to be set")
	}
	if info.SampleRate != 16000 || info.Format != EncodingLinear16 {
		t.Fatalf("unexpected default encoding %+v", info)
	}
	if got := info.BytesPerSecond(); got != 32000 {
		t.Fatalf("expected 32000 bytes per second, got %d", got)
	}
}

func TestSilenceValuePerFormat(t *testing.T) {
	cases := map[encodingFormat]byte{
		EncodingLinear16: 0,
		EncodingALaw:     0x55,
		EncodingMulaw:    0xFF,
	}
	for format, want := range cases {
		if got := (EncodingInfo{SampleRate: 8000, Format: format}).SilenceValue(); got != want {
			t.Fatalf("expected silence %#x for %s, got %#x", want, format, got)
		}
	}
}

func TestUnknownFormatHasNoByteSize(t *testing.T) {
	info := EncodingInfo{SampleRate: 8000, Format: encodingFormat("opus")}
	if info.Format.ByteSize() != -1 {
		t.Fatalf("expected unknown format to report -1 byte size")
	}
	if info.BytesPerSecond() != 0 {
		t.Fatalf("expected unknown format to report 0 bytes per second")
	}
}
