package remote

import (
	"bufio"
	"net"
	"testing"
)

func TestEscapeJSONEscapesControlCharacters(t *testing.T) {
	got := EscapeJSON("a\"b\\c\nd\re\tf")
	want := `a\"b\\c\nd\re\tf`
	if got != want {
		t.Fatalf("EscapeJSON: got %q want %q", got, want)
	}
}

func TestGetJSONStringDistinguishesKeyFromValue(t *testing.T) {
	doc := `{"op":"compiled","id":3,"note":"the key \"op\" appears here too"}`
	if got := GetJSONString(doc, "op"); got != "compiled" {
		t.Fatalf("op: got %q", got)
	}
	if got := GetJSONString(doc, "note"); got != `the key "op" appears here too` {
		t.Fatalf("note: got %q", got)
	}
}

func TestGetJSONIntParsesSignedIntegers(t *testing.T) {
	doc := `{"id":-42,"count":7}`
	if got := GetJSONInt(doc, "id"); got != -42 {
		t.Fatalf("id: got %d", got)
	}
	if got := GetJSONInt(doc, "count"); got != 7 {
		t.Fatalf("count: got %d", got)
	}
}

func TestGetJSONIntMissingKeyReturnsZero(t *testing.T) {
	if got := GetJSONInt(`{"id":1}`, "nope"); got != 0 {
		t.Fatalf("got %d want 0", got)
	}
}

func TestFindArrayBoundsExtractsContent(t *testing.T) {
	doc := `{"op":"required","id":1,"modules":[{"name":"a"},{"name":"b"}]}`
	content, ok := FindArrayBounds(doc, "modules")
	if !ok {
		t.Fatal("expected ok")
	}
	want := `{"name":"a"},{"name":"b"}`
	if content != want {
		t.Fatalf("got %q want %q", content, want)
	}
}

func TestFindArrayBoundsMissingKey(t *testing.T) {
	if _, ok := FindArrayBounds(`{"op":"required"}`, "modules"); ok {
		t.Fatal("expected not ok")
	}
}

func TestSplitObjectsToleratesCommasInStrings(t *testing.T) {
	content := `{"name":"a,b","symbol":"x"},{"name":"c"}`
	objs := SplitObjects(content)
	if len(objs) != 2 {
		t.Fatalf("got %d objects, want 2", len(objs))
	}
	if GetJSONString(objs[0], "name") != "a,b" {
		t.Fatalf("object 0 name: got %q", GetJSONString(objs[0], "name"))
	}
	if GetJSONString(objs[1], "name") != "c" {
		t.Fatalf("object 1 name: got %q", GetJSONString(objs[1], "name"))
	}
}

func TestBase64RoundTrip(t *testing.T) {
	cases := []string{"", "f", "fo", "foo", "foob", "fooba", "foobar", "\x00\x01\xff\xfe"}
	for _, c := range cases {
		enc := Base64Encode([]byte(c))
		dec := Base64Decode(enc)
		if string(dec) != c {
			t.Fatalf("round trip %q: got %q via %q", c, dec, enc)
		}
	}
}

func TestBase64DecodeStopsAtFirstNonAlphabetByte(t *testing.T) {
	// "Zm9v" decodes to "foo"; appending a space should halt decoding
	// rather than erroring, per Base64Decode's permissive behavior.
	got := Base64Decode("Zm9v Zm9v")
	if string(got) != "foo" {
		t.Fatalf("got %q want %q", got, "foo")
	}
}

func TestBase64DecodeHandlesPadding(t *testing.T) {
	if got := Base64Decode("Zg=="); string(got) != "f" {
		t.Fatalf("got %q", got)
	}
	if got := Base64Decode("Zm8="); string(got) != "fo" {
		t.Fatalf("got %q", got)
	}
}

// fakeServer runs a minimal compile-server-like loopback for one
// connection: it reads a newline-delimited request and writes a
// caller-supplied response line, echoing nothing itself -- the handler
// decides what id to send back, so tests can also exercise mismatch
// detection.
func fakeServer(t *testing.T, respond func(request string) string) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			resp := respond(line)
			if resp == "" {
				return
			}
			if _, err := conn.Write([]byte(resp)); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestClientCompileRoundTrip(t *testing.T) {
	addr, stop := fakeServer(t, func(req string) string {
		id := GetJSONInt(req, "id")
		return `{"op":"compiled","id":` + itoa(id) + `,"symbol":"user_foo","object":"Zm9v"}` + "\n"
	})
	defer stop()

	host, portStr := splitHostPort(t, addr)
	c := NewClient(host, portStr)
	resp := c.Compile("(defn foo [] 1)", "user", "user")
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.EntrySym != "user_foo" {
		t.Fatalf("entry sym: got %q", resp.EntrySym)
	}
	if string(resp.ObjectData) != "foo" {
		t.Fatalf("object data: got %q", resp.ObjectData)
	}
}

func TestClientCompileErrorResponse(t *testing.T) {
	addr, stop := fakeServer(t, func(req string) string {
		id := GetJSONInt(req, "id")
		return `{"op":"error","id":` + itoa(id) + `,"error":"parse failure","type":"compile"}` + "\n"
	})
	defer stop()

	host, portStr := splitHostPort(t, addr)
	c := NewClient(host, portStr)
	resp := c.Compile("(bad", "user", "user")
	if resp.Success {
		t.Fatal("expected failure")
	}
	if resp.ErrorType != ErrorCompile {
		t.Fatalf("error type: got %q", resp.ErrorType)
	}
}

func TestClientDetectsResponseIDMismatch(t *testing.T) {
	addr, stop := fakeServer(t, func(req string) string {
		// Always answer as if id were 999, regardless of what was asked.
		return `{"op":"compiled","id":999,"symbol":"x","object":""}` + "\n"
	})
	defer stop()

	host, portStr := splitHostPort(t, addr)
	c := NewClient(host, portStr)
	resp := c.Compile("(+ 1 1)", "user", "user")
	if resp.Success {
		t.Fatal("expected protocol error on id mismatch")
	}
	if resp.ErrorType != ErrorProtocol {
		t.Fatalf("error type: got %q", resp.ErrorType)
	}
}

func TestClientPing(t *testing.T) {
	addr, stop := fakeServer(t, func(req string) string {
		id := GetJSONInt(req, "id")
		return `{"op":"pong","id":` + itoa(id) + `}` + "\n"
	})
	defer stop()

	host, portStr := splitHostPort(t, addr)
	c := NewClient(host, portStr)
	if !c.Ping() {
		t.Fatal("expected ping to succeed")
	}
}

func TestClientRequireNSParsesModulesArray(t *testing.T) {
	addr, stop := fakeServer(t, func(req string) string {
		id := GetJSONInt(req, "id")
		return `{"op":"required","id":` + itoa(id) +
			`,"modules":[{"name":"a.b","symbol":"a_b","object":"Zm9v"},{"name":"c","symbol":"c","object":""}]}` + "\n"
	})
	defer stop()

	host, portStr := splitHostPort(t, addr)
	c := NewClient(host, portStr)
	resp := c.RequireNS("user", "(ns user (:require [a.b]))")
	if !resp.Success {
		t.Fatalf("expected success, got %q", resp.Error)
	}
	if len(resp.Modules) != 2 {
		t.Fatalf("got %d modules, want 2", len(resp.Modules))
	}
	if resp.Modules[0].Name != "a.b" || string(resp.Modules[0].ObjectData) != "foo" {
		t.Fatalf("module 0: %+v", resp.Modules[0])
	}
	if resp.Modules[1].Name != "c" {
		t.Fatalf("module 1: %+v", resp.Modules[1])
	}
}

func TestClientConnectFailureReturnsConnectionError(t *testing.T) {
	// Port 1 is privileged/unused in test sandboxes; dial should fail fast.
	c := NewClient("127.0.0.1", 1)
	resp := c.Compile("(+ 1 1)", "user", "user")
	if resp.Success {
		t.Fatal("expected failure")
	}
	if resp.ErrorType != ErrorConnection {
		t.Fatalf("error type: got %q", resp.ErrorType)
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port := 0
	for i := 0; i < len(portStr); i++ {
		port = port*10 + int(portStr[i]-'0')
	}
	return host, port
}
