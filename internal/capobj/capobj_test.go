package capobj

import "testing"

func TestCapRawZero(t *testing.T) {
	c := &CapRaw{Type: TypeFrame, Rights: AllRights, Paddr: 0x1000, Arg1: 1, Arg2: 2}
	other := &CapRaw{Type: TypeFrame}
	c.Prev = other
	other.Next = c

	c.Zero()

	if !c.Null() {
		t.Fatalf("Zero() left Type = %s, want Null", c.Type)
	}
	if c.Rights != 0 {
		t.Errorf("Rights = %d, want 0", c.Rights)
	}
	if c.Paddr != 0 || c.Arg1 != 0 || c.Arg2 != 0 {
		t.Errorf("payload not cleared: paddr=%#x arg1=%#x arg2=%#x", c.Paddr, c.Arg1, c.Arg2)
	}
	if c.Prev != nil || c.Next != nil {
		t.Errorf("MDB links not cleared")
	}
}

func TestRightsString(t *testing.T) {
	r := Read | Write | Send
	if got, want := r.String(), "rw---s-"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFrameArgsRoundTrip(t *testing.T) {
	in := FrameArgs{Size: Frame2M, Cache: WriteCombining, Device: true}
	out := UnpackFrameArgs(in.Pack())
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestUntypedArgsRoundTrip(t *testing.T) {
	in := UntypedArgs{BitSize: 24, Device: false}
	out := UnpackUntypedArgs(in.Pack())
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestCNodeArgsRoundTrip(t *testing.T) {
	in := CNodeArgs{RadixBits: 8, GuardBits: 4}
	out := UnpackCNodeArgs(in.Pack())
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestFrameSizeFromUserBits(t *testing.T) {
	cases := []struct {
		bits uint
		want FrameSize
		ok   bool
	}{
		{12, Frame4K, true},
		{21, Frame2M, true},
		{30, Frame1G, true},
		{13, 0, false},
	}
	for _, c := range cases {
		got, ok := FrameSizeFromUserBits(c.bits)
		if ok != c.ok {
			t.Errorf("FrameSizeFromUserBits(%d) ok = %v, want %v", c.bits, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("FrameSizeFromUserBits(%d) = %v, want %v", c.bits, got, c.want)
		}
	}
}

func TestNewCapRefPanicsOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on type mismatch")
		}
	}()
	raw := &CapRaw{Type: TypeFrame}
	NewCapRef(raw, UntypedTag{})
}
