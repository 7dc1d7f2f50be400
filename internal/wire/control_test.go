package wire

import "testing"

func TestControlCodecReplicationRoundTrip(t *testing.T) {
	codec := ControlCodec{}
	msg := &ControlMessage{Type: CtrlReplication, Keyhash: 0x42, Key: []byte("hot")}

	buf, err := codec.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != CtrlReplication || got.Keyhash != 0x42 || string(got.Key) != "hot" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestControlCodecHKReportRoundTrip(t *testing.T) {
	codec := ControlCodec{}
	msg := &ControlMessage{
		Type: CtrlHKReport,
		Entries: []HKEntry{
			{Keyhash: 1, Load: 10},
			{Keyhash: 2, Load: 20},
		},
	}
	buf, err := codec.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Entries) != 2 || got.Entries[1].Keyhash != 2 || got.Entries[1].Load != 20 {
		t.Fatalf("round trip mismatch: %+v", got.Entries)
	}
}

func TestControlCodecResetNoPayload(t *testing.T) {
	codec := ControlCodec{}
	buf, err := codec.Encode(&ControlMessage{Type: CtrlResetReq})
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != controlHeaderSize {
		t.Fatalf("expected bare header, got %d bytes", len(buf))
	}
	got, err := codec.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != CtrlResetReq {
		t.Fatalf("unexpected type: %v", got.Type)
	}
}

func TestControlCodecRejectsOtherIdentifier(t *testing.T) {
	codec := ControlCodec{}
	long := LongCodec{Ident: IdentLong}
	buf, _ := long.Encode(&Packet{Header: Header{Op: OpGet}, Request: &Request{Key: []byte("x")}})
	if _, err := codec.Decode(buf); err != ErrBadIdentifier {
		t.Fatalf("expected ErrBadIdentifier, got %v", err)
	}
}
