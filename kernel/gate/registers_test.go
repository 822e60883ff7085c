package gate

import (
	"bytes"
	"testing"
)

func TestRegistersDumpTo(t *testing.T) {
	regs := Registers{
		EAX:    1,
		EBX:    2,
		ECX:    3,
		EDX:    4,
		ESI:    5,
		EDI:    6,
		EBP:    7,
		ESP:    8,
		EIP:    9,
		CS:     10,
		EFlags: 11,
	}

	exp := "EAX = 00000001 EBX = 00000002\nECX = 00000003 EDX = 00000004\nESI = 00000005 EDI = 00000006\nEBP = 00000007 ESP = 00000008\n\nEIP = 00000009 CS  = 0000000a\nEFL = 0000000b\n"

	var buf bytes.Buffer
	regs.DumpTo(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	t.Run("from user mode", func(t *testing.T) {
		regs.CS = 0x1b
		regs.UserESP = 0xbffff000
		regs.UserSS = 0x23

		if !regs.FromUserMode() {
			t.Fatal("expected a ring 3 frame")
		}

		buf.Reset()
		regs.DumpTo(&buf)

		if got := buf.String(); !bytes.HasSuffix([]byte(got), []byte("USP = bffff000 USS = 00000023\n")) {
			t.Fatalf("expected the user stack to be dumped; got:\n%s", got)
		}
	})
}
