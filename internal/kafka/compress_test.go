package kafka

import "testing"

func TestCompressDecompressRoundTripGzip(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog, repeated a few times, repeated a few times")
	compressed, err := compress(CompressionGzip, original)
	if err != nil {
		t.Fatalf("unexpected compress error: %v", err)
	}
	got, err := decompress(CompressionGzip, compressed)
	if err != nil {
		t.Fatalf("unexpected decompress error: %v", err)
	}
	if string(got) != string(original) {
		t.Fatalf("got %q want %q", got, original)
	}
}

func TestCompressDecompressRoundTripLZ4(t *testing.T) {
	original := []byte("lz4 round trip payload lz4 round trip payload")
	compressed, err := compress(CompressionLZ4, original)
	if err != nil {
		t.Fatalf("unexpected compress error: %v", err)
	}
	got, err := decompress(CompressionLZ4, compressed)
	if err != nil {
		t.Fatalf("unexpected decompress error: %v", err)
	}
	if string(got) != string(original) {
		t.Fatalf("got %q want %q", got, original)
	}
}

func TestCompressDecompressRoundTripZstd(t *testing.T) {
	original := []byte("zstd round trip payload zstd round trip payload")
	compressed, err := compress(CompressionZstd, original)
	if err != nil {
		t.Fatalf("unexpected compress error: %v", err)
	}
	got, err := decompress(CompressionZstd, compressed)
	if err != nil {
		t.Fatalf("unexpected decompress error: %v", err)
	}
	if string(got) != string(original) {
		t.Fatalf("got %q want %q", got, original)
	}
}

func TestCompressDecompressNoneIsIdentity(t *testing.T) {
	original := []byte("uncompressed")
	compressed, err := compress(CompressionNone, original)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(compressed) != string(original) {
		t.Fatal("expected CompressionNone to pass data through unchanged")
	}
	got, err := decompress(CompressionNone, compressed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(original) {
		t.Fatal("expected CompressionNone decompress to pass data through unchanged")
	}
}

func TestDecompressSnappyReturnsUnsupportedSentinel(t *testing.T) {
	_, err := decompress(CompressionSnappy, []byte("whatever"))
	if !IsUnsupportedCompression(err) {
		t.Fatalf("expected the unsupported-snappy sentinel, got %v", err)
	}
}

func TestCompressSnappyReturnsUnsupportedSentinel(t *testing.T) {
	_, err := compress(CompressionSnappy, []byte("whatever"))
	if !IsUnsupportedCompression(err) {
		t.Fatalf("expected the unsupported-snappy sentinel, got %v", err)
	}
}

func TestDecompressUnknownCodecErrors(t *testing.T) {
	if _, err := decompress(CompressionCodec(99), []byte("x")); err == nil {
		t.Fatal("expected an error for an unknown compression codec")
	}
}
