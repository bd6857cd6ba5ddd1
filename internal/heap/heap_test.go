package heap

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	binpkg "github.com/robert-malhotra/virelay/internal/binary"
)

func le(vs ...uint64) []byte {
	var b bytes.Buffer
	for _, v := range vs {
		binary.Write(&b, binary.LittleEndian, v)
	}
	return b.Bytes()
}

func reader(b []byte) *binpkg.Reader {
	return binpkg.NewReader(bytes.NewReader(b), binpkg.DefaultConfig())
}

func TestLocalHeap(t *testing.T) {
	data := []byte("\x00hello\x00world\x00tail")
	var file bytes.Buffer
	file.WriteString("HEAP\x00\x00\x00\x00")
	file.Write(le(uint64(len(data)), 1, 32))
	file.Write(data)

	h, err := ReadLocalHeap(reader(file.Bytes()), 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.DataSize != uint64(len(data)) || h.DataAddress != 32 {
		t.Fatalf("got %+v", h)
	}
	for off, want := range map[uint64]string{0: "", 1: "hello", 7: "world", 13: "tail", 15: "il", 99: ""} {
		if got := h.GetString(off); got != want {
			t.Errorf("GetString(%d) = %q, want %q", off, got, want)
		}
	}
}

// collection builds a GCOL collection at offset 0 holding objs as 1..n.
func collection(objs ...string) []byte {
	var body bytes.Buffer
	for i, o := range objs {
		binary.Write(&body, binary.LittleEndian, uint16(i+1))
		binary.Write(&body, binary.LittleEndian, uint16(1))
		body.Write(make([]byte, 4))
		body.Write(le(uint64(len(o))))
		body.WriteString(o)
		body.Write(make([]byte, (8-len(o)%8)%8))
	}
	body.Write(make([]byte, 8)) // index 0 ends the list
	var b bytes.Buffer
	b.WriteString("GCOL\x01\x00\x00\x00")
	b.Write(le(uint64(16 + body.Len())))
	b.Write(body.Bytes())
	return b.Bytes()
}

func TestGlobalHeap(t *testing.T) {
	file := append(make([]byte, 8), collection("spectral\x00", "tsne", "")...)
	h, err := ReadGlobalHeap(reader(file), 8)
	if err != nil {
		t.Fatal(err)
	}
	for idx, want := range map[uint16]string{1: "spectral", 2: "tsne"} {
		got, err := h.GetString(idx)
		if err != nil || got != want {
			t.Errorf("GetString(%d) = %q, %v; want %q", idx, got, err, want)
		}
	}
	if _, err := h.GetObject(3); err == nil {
		t.Error("empty object was stored")
	}

	obj, _ := h.GetObject(2)
	obj[0] = 'X'
	if again, _ := h.GetString(2); again != "tsne" {
		t.Error("GetObject returned shared storage")
	}

	var nilHeap *GlobalHeap
	if _, err := nilHeap.GetObject(1); err == nil {
		t.Error("nil heap returned an object")
	}
}

func TestHeapErrors(t *testing.T) {
	tests := []struct {
		name string
		read func() error
		want string
	}{
		{"local signature", func() error {
			_, err := ReadLocalHeap(reader([]byte("HEAX\x00\x00\x00\x00"+strings.Repeat("\x00", 24))), 0)
			return err
		}, "signature"},
		{"local version", func() error {
			_, err := ReadLocalHeap(reader([]byte("HEAP\x01\x00\x00\x00"+strings.Repeat("\x00", 24))), 0)
			return err
		}, "version"},
		{"global version", func() error {
			b := append(make([]byte, 8), collection("x")...)
			b[12] = 2
			_, err := ReadGlobalHeap(reader(b), 8)
			return err
		}, "version"},
		{"global address", func() error {
			_, err := ReadGlobalHeap(reader(collection("x")), 0)
			return err
		}, "address"},
		{"global overrun", func() error {
			b := collection("abcdefgh")
			binary.LittleEndian.PutUint64(b[8:], 36)
			_, err := ReadGlobalHeap(reader(append(make([]byte, 8), b...)), 8)
			return err
		}, ""},
	}
	for _, tt := range tests {
		err := tt.read()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v", tt.name, err)
		}
	}
}

func TestParseGlobalHeapID(t *testing.T) {
	id, err := ParseGlobalHeapID(append(le(0x1234), 7, 0, 0, 0), 8)
	if err != nil || id != (GlobalHeapID{CollectionAddress: 0x1234, ObjectIndex: 7}) {
		t.Errorf("got %+v, %v", id, err)
	}
	id, err = ParseGlobalHeapID([]byte{0x10, 0, 0, 0, 2, 0, 0, 0}, 4)
	if err != nil || id.CollectionAddress != 0x10 || id.ObjectIndex != 2 {
		t.Errorf("4-byte offsets: got %+v, %v", id, err)
	}
	if _, err := ParseGlobalHeapID([]byte{1, 2, 3}, 8); err == nil {
		t.Error("short ID accepted")
	}
	if _, err := ParseGlobalHeapID(make([]byte, 16), 3); err == nil {
		t.Error("odd offset size accepted")
	}
}
