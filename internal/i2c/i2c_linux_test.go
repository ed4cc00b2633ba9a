//go:build linux

package i2c

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openNull(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	b := &Bus{f: f, path: "/dev/null"}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestDevTx_InvalidAddr(t *testing.T) {
	b := openNull(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).Write([]byte{0x00})
		if err == nil || !strings.Contains(err.Error(), "invalid i2c addr") {
			t.Fatalf("addr=0x%X err=%v want invalid i2c addr", addr, err)
		}
	}
}

func TestDevTx_EmptyIsNoop(t *testing.T) {
	b := openNull(t)
	n, err := b.Dev(0x48).tx(nil, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if n != 0 {
		t.Fatalf("n=%d want 0", n)
	}
}

func TestDev_ClosedBus(t *testing.T) {
	b := openNull(t)
	d := b.Dev(0x48)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := d.ReadRegU16(0); err == nil {
		t.Fatalf("expected error on closed bus")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpen_MissingAdapter(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "i2c-9"))
	if err == nil || !strings.Contains(err.Error(), "i2c: open") {
		t.Fatalf("err=%v want i2c: open error", err)
	}
}
