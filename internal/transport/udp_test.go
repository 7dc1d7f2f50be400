package transport

import (
	"net"
	"testing"
	"time"
)

func TestSendRecvLoopback(t *testing.T) {
	server, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	client, err := Dial(server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	clientAddr := client.LocalAddr().(*net.UDPAddr)
	if err := client.Send([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	payload, from, release, err := server.Recv()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if string(payload) != "hello" {
		t.Fatalf("expected hello, got %q", payload)
	}
	if from.Port != clientAddr.Port {
		t.Fatalf("expected sender port %d, got %d", clientAddr.Port, from.Port)
	}
}

func TestRecvBufferIsReusableAfterRelease(t *testing.T) {
	server, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	client, err := Dial(server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	for i := 0; i < 3; i++ {
		if err := client.Send([]byte("ping")); err != nil {
			t.Fatal(err)
		}
		payload, _, release, err := server.Recv()
		if err != nil {
			t.Fatal(err)
		}
		if string(payload) != "ping" {
			t.Fatalf("expected ping, got %q", payload)
		}
		release()
	}
}

func TestBatchReaderDrainsMultipleDatagrams(t *testing.T) {
	server, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	client, err := Dial(server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	for _, msg := range []string{"a", "bb", "ccc"} {
		if err := client.Send([]byte(msg)); err != nil {
			t.Fatal(err)
		}
	}

	br := NewBatchReader(server, 8)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))

	got := make(map[string]bool)
	for len(got) < 3 {
		n, err := br.Read()
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < n; i++ {
			payload, from := br.Message(i)
			if from == nil {
				t.Fatal("expected a sender address")
			}
			got[string(payload)] = true
		}
	}
	for _, want := range []string{"a", "bb", "ccc"} {
		if !got[want] {
			t.Fatalf("missing datagram %q in %v", want, got)
		}
	}
}
