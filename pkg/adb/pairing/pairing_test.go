package pairing

import (
	"bytes"
	"testing"
)

func TestHandshakeProducesSharedSession(t *testing.T) {
	hostKP, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair host: %v", err)
	}
	deviceKP, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair device: %v", err)
	}

	salt := []byte("123456") // pairing code in a real flow

	hostSession, err := Handshake(hostKP, deviceKP.Public, salt)
	if err != nil {
		t.Fatalf("host handshake: %v", err)
	}
	deviceSession, err := Handshake(deviceKP, hostKP.Public, salt)
	if err != nil {
		t.Fatalf("device handshake: %v", err)
	}

	plaintext := []byte(`{"guid":"abc","label":"pixel"}`)
	sealed, err := hostSession.Seal(plaintext, nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	opened, err := deviceSession.Open(sealed, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("roundtrip mismatch: %q vs %q", opened, plaintext)
	}
}

func TestPeerInfoRoundTrip(t *testing.T) {
	hostKP, _ := GenerateKeyPair()
	deviceKP, _ := GenerateKeyPair()
	salt := []byte("654321")

	hostSession, err := Handshake(hostKP, deviceKP.Public, salt)
	if err != nil {
		t.Fatalf("host handshake: %v", err)
	}
	deviceSession, err := Handshake(deviceKP, hostKP.Public, salt)
	if err != nil {
		t.Fatalf("device handshake: %v", err)
	}

	info := PeerInfo{GUID: "1234567890abcdef", Label: "pixel 8 pro"}
	sealed, err := hostSession.SealPeerInfo(info)
	if err != nil {
		t.Fatalf("SealPeerInfo: %v", err)
	}

	got, err := deviceSession.OpenPeerInfo(sealed)
	if err != nil {
		t.Fatalf("OpenPeerInfo: %v", err)
	}
	if got != info {
		t.Fatalf("peer info mismatch: got %+v, want %+v", got, info)
	}
}

func TestHandshakeMismatchedSaltFailsToOpen(t *testing.T) {
	hostKP, _ := GenerateKeyPair()
	deviceKP, _ := GenerateKeyPair()

	hostSession, err := Handshake(hostKP, deviceKP.Public, []byte("111111"))
	if err != nil {
		t.Fatalf("host handshake: %v", err)
	}
	deviceSession, err := Handshake(deviceKP, hostKP.Public, []byte("222222"))
	if err != nil {
		t.Fatalf("device handshake: %v", err)
	}

	sealed, _ := hostSession.Seal([]byte("hello"), nil)
	if _, err := deviceSession.Open(sealed, nil); err == nil {
		t.Fatalf("expected Open to fail with mismatched salt-derived keys")
	}
}
