package isccid

import "testing"

func TestCanonicalStringExample(t *testing.T) {
	// spec.md §6: hub_id=0, ts_us=1,746,171,541,264,773 -> ISCC:MAIWGQRD43YZQUAA (realm 0)
	id, err := Build(1746171541264773, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := id.String(RealmSandbox)
	want := "ISCC:MAIWGQRD43YZQUAA"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestRoundtripCodec(t *testing.T) {
	// P5: for every valid (ts_us, hub_id), parse(str(build(ts_us, hub_id))) == build(ts_us, hub_id)
	cases := []struct {
		ts    int64
		hubID int
	}{
		{0, 0},
		{1, 4095},
		{MaxTimestampMicros, 0},
		{MaxTimestampMicros, MaxHubID},
		{1746171541264773, 1},
	}
	for _, c := range cases {
		built, err := Build(c.ts, c.hubID)
		if err != nil {
			t.Fatalf("Build(%d, %d): %v", c.ts, c.hubID, err)
		}
		s := built.String(RealmOperational)
		parsed, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if !built.Equal(parsed) {
			t.Errorf("roundtrip mismatch for (%d, %d): built=%v parsed=%v", c.ts, c.hubID, built, parsed)
		}
		if parsed.TimestampMicros() != c.ts {
			t.Errorf("TimestampMicros() = %d, want %d", parsed.TimestampMicros(), c.ts)
		}
		if parsed.HubID() != c.hubID {
			t.Errorf("HubID() = %d, want %d", parsed.HubID(), c.hubID)
		}

		// bytes/body representations interconvert losslessly too.
		fromBytes, err := Parse(built.Bytes())
		if err != nil {
			t.Fatalf("Parse(bytes): %v", err)
		}
		if !fromBytes.Equal(built) {
			t.Errorf("bytes roundtrip mismatch for (%d, %d)", c.ts, c.hubID)
		}
	}
}

func TestBuildRejectsOutOfRange(t *testing.T) {
	if _, err := Build(-1, 0); err == nil {
		t.Error("expected error for negative timestamp")
	}
	if _, err := Build(MaxTimestampMicros+1, 0); err == nil {
		t.Error("expected error for timestamp overflow")
	}
	if _, err := Build(0, -1); err == nil {
		t.Error("expected error for negative hub id")
	}
	if _, err := Build(0, MaxHubID+1); err == nil {
		t.Error("expected error for hub id overflow")
	}
}

func TestOrdering(t *testing.T) {
	a, _ := Build(100, 5)
	b, _ := Build(200, 0)
	if !a.Less(b) {
		t.Error("expected a < b by timestamp")
	}
	c, _ := Build(100, 6)
	if !a.Less(c) {
		t.Error("expected a < c by hub id when timestamps equal")
	}
}

func TestParseRejectsWrongMainType(t *testing.T) {
	// A header with MainType != 0110 should be rejected.
	bogus := []byte{0x10, 0x11, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := Parse(bogus); err == nil {
		t.Error("expected error for wrong MainType")
	}
}
