package encryption

import (
	"bytes"
	"testing"
)

func TestParcelRoundTripValueOnly(t *testing.T) {
	p := Parcel{Value: []byte("hello world")}
	encoded := EncodeParcel(p)

	decoded, err := DecodeParcel(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(decoded.Value, p.Value) {
		t.Fatalf("value mismatch: got %q want %q", decoded.Value, p.Value)
	}
	if decoded.HasHeaders {
		t.Fatal("expected HasHeaders false when no headers were encoded")
	}
}

func TestParcelRoundTripValueAndHeaders(t *testing.T) {
	p := Parcel{Value: []byte("payload"), HasHeaders: true, HeaderBlob: []byte("header-blob")}
	encoded := EncodeParcel(p)

	decoded, err := DecodeParcel(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(decoded.Value, p.Value) {
		t.Fatalf("value mismatch: got %q want %q", decoded.Value, p.Value)
	}
	if !decoded.HasHeaders || !bytes.Equal(decoded.HeaderBlob, p.HeaderBlob) {
		t.Fatalf("header round trip mismatch: %+v", decoded)
	}
}

func TestParcelRoundTripTombstone(t *testing.T) {
	p := Parcel{Value: nil}
	encoded := EncodeParcel(p)

	decoded, err := DecodeParcel(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Value != nil {
		t.Fatalf("expected nil value to round trip as nil, got %q", decoded.Value)
	}
}

func TestParcelRoundTripEmptyValue(t *testing.T) {
	p := Parcel{Value: []byte{}}
	encoded := EncodeParcel(p)

	decoded, err := DecodeParcel(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Value == nil || len(decoded.Value) != 0 {
		t.Fatalf("expected an empty but non-nil value to round trip distinctly from a tombstone, got %v", decoded.Value)
	}
}

func TestDecodeParcelRejectsShortInput(t *testing.T) {
	if _, err := DecodeParcel([]byte{1}); err == nil {
		t.Fatal("expected an error for input shorter than the version+bitmap header")
	}
}

func TestDecodeParcelRejectsUnsupportedVersion(t *testing.T) {
	if _, err := DecodeParcel([]byte{9, 0, 0}); err == nil {
		t.Fatal("expected an error for an unsupported parcel version")
	}
}

func TestEncodeParcelWireLayoutIsVersionThenU16Bitmap(t *testing.T) {
	encoded := EncodeParcel(Parcel{Value: []byte("x"), HasHeaders: true, HeaderBlob: []byte("y")})

	if len(encoded) < 3 {
		t.Fatalf("expected at least a 3-byte version+bitmap header, got %d bytes", len(encoded))
	}
	if encoded[0] != parcelVersion1 {
		t.Fatalf("expected version byte %d, got %d", parcelVersion1, encoded[0])
	}
	bitmap := uint16(encoded[1])<<8 | uint16(encoded[2])
	if bitmap != parcelFieldValue|parcelFieldHeaders {
		t.Fatalf("expected the bitmap to be a big-endian u16 with both field bits set, got %#04x", bitmap)
	}
}

func TestEncodeParcelIntoReusesBuffer(t *testing.T) {
	scratch := make([]byte, 0, 64)
	first := EncodeParcelInto(scratch, Parcel{Value: []byte("one")})
	second := EncodeParcelInto(first[:0], Parcel{Value: []byte("two")})

	decoded, err := DecodeParcel(second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(decoded.Value) != "two" {
		t.Fatalf("expected reused-buffer encode to reflect the second parcel, got %q", decoded.Value)
	}
}
