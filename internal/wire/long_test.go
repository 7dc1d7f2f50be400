package wire

import (
	"bytes"
	"testing"
)

func TestLongCodecRoundTrip(t *testing.T) {
	codec := LongCodec{Ident: IdentLong}

	cases := []*Packet{
		{
			Header: Header{Identifier: IdentLong, Op: OpGet, Keyhash: 0x1234, ClientID: 1, ServerID: 2, Load: 7, Version: 1},
			Request: &Request{ReqID: 1, ReqTime: 2, InnerOp: OpGet, Key: []byte("hello")},
		},
		{
			Header: Header{Identifier: IdentLong, Op: OpPut, Keyhash: 0x1234, ClientID: 1, ServerID: 2, Version: 5},
			Request: &Request{ReqID: 1, ReqTime: 2, InnerOp: OpPut, Key: []byte("hello"), Value: []byte("world")},
		},
		{
			Header: Header{Identifier: IdentLong, Op: OpRepR, Keyhash: 0x1234, ClientID: 1, ServerID: 2, Version: 5},
			Reply:  &Reply{ReqID: 1, ReqTime: 2, InnerOp: OpGet, Result: ResultOK, Value: []byte("world")},
		},
		{
			Header:      Header{Identifier: IdentLong, Op: OpRCReq, Keyhash: 0x1234, ServerID: 3, Version: 9},
			Replication: &ReplicationRequest{Key: []byte("hello"), Value: []byte("world")},
		},
		{
			Header: Header{Identifier: IdentLong, Op: OpMgrAck, Keyhash: 0x1234, ServerID: 3, Version: 9},
		},
	}

	for i, pkt := range cases {
		buf, err := codec.Encode(pkt)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		got, err := codec.Decode(buf)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if got.Header != pkt.Header {
			t.Fatalf("case %d: header mismatch: got %+v want %+v", i, got.Header, pkt.Header)
		}
		if pkt.Request != nil {
			if got.Request == nil || !bytes.Equal(got.Request.Key, pkt.Request.Key) || !bytes.Equal(got.Request.Value, pkt.Request.Value) {
				t.Fatalf("case %d: request mismatch: got %+v want %+v", i, got.Request, pkt.Request)
			}
		}
		if pkt.Reply != nil {
			if got.Reply == nil || !bytes.Equal(got.Reply.Value, pkt.Reply.Value) || got.Reply.Result != pkt.Reply.Result {
				t.Fatalf("case %d: reply mismatch: got %+v want %+v", i, got.Reply, pkt.Reply)
			}
		}
		if pkt.Replication != nil {
			if got.Replication == nil || !bytes.Equal(got.Replication.Key, pkt.Replication.Key) || !bytes.Equal(got.Replication.Value, pkt.Replication.Value) {
				t.Fatalf("case %d: replication mismatch: got %+v want %+v", i, got.Replication, pkt.Replication)
			}
		}
	}
}

func TestLongCodecKeyhashMaskRoundTrip(t *testing.T) {
	codec := LongCodec{Ident: IdentLong}
	pkt := &Packet{
		Header:  Header{Op: OpGet, Keyhash: 0x7FFFFFFF},
		Request: &Request{Key: []byte("x")},
	}
	buf, err := codec.Encode(pkt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Header.Keyhash != 0x7FFFFFFF {
		t.Fatalf("keyhash mask round trip failed: got %x", got.Header.Keyhash)
	}
}

func TestLongCodecRejectsWrongIdentifier(t *testing.T) {
	long := LongCodec{Ident: IdentLong}
	static := LongCodec{Ident: IdentStatic}

	buf, err := long.Encode(&Packet{Header: Header{Op: OpGet}, Request: &Request{Key: []byte("k")}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := static.Decode(buf); err != ErrBadIdentifier {
		t.Fatalf("expected ErrBadIdentifier, got %v", err)
	}
}

func TestLongCodecTruncatedHeader(t *testing.T) {
	codec := LongCodec{Ident: IdentLong}
	buf := make([]byte, HeaderSize-1)
	if _, err := codec.Decode(buf); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestLongCodecExactBaseSizeRejectsVariableRead(t *testing.T) {
	codec := LongCodec{Ident: IdentLong}
	buf := make([]byte, HeaderSize)
	// IdentLong (0x4750), big-endian, so the identifier check passes.
	buf[0], buf[1] = 0x47, 0x50
	buf[2] = byte(OpGet) // request payload expected but absent
	if _, err := codec.Decode(buf); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated at exact base size, got %v", err)
	}
}
