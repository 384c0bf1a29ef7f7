package loom

import "testing"

func TestFrame(t *testing.T) {
	t.Run("Area", func(t *testing.T) {
		f := newFrame(NewBuffer(40, 5), NewGraphemePool(), DegradeFull)
		if got := f.Area(); got != (Rect{W: 40, H: 5}) {
			t.Errorf("Area = %v", got)
		}
	})

	t.Run("LinkRegistry", func(t *testing.T) {
		f := newFrame(NewBuffer(10, 2), NewGraphemePool(), DegradeFull)
		a := f.RegisterLink("https://a")
		b := f.RegisterLink("https://b")
		if a != 1 || b != 2 {
			t.Errorf("link ids = %d, %d; want 1, 2", a, b)
		}
		if f.RegisterLink("") != 0 {
			t.Error("empty URI must map to the no-link id")
		}
		if f.links[a-1] != "https://a" || f.links[b-1] != "https://b" {
			t.Error("registry order mangled")
		}
	})

	t.Run("InternTracksReferences", func(t *testing.T) {
		pool := NewGraphemePool()
		f := newFrame(NewBuffer(10, 2), pool, DegradeFull)
		id := f.InternGrapheme(flagCluster)
		if id == 0 {
			t.Fatal("intern failed")
		}
		if len(f.interned) != 1 {
			t.Error("frame did not record its intern reference")
		}
		if pool.Live() != 1 {
			t.Errorf("Live = %d", pool.Live())
		}
	})

	t.Run("CursorRequest", func(t *testing.T) {
		f := newFrame(NewBuffer(10, 2), NewGraphemePool(), DegradeFull)
		if f.cursor != nil {
			t.Fatal("cursor must start hidden")
		}
		f.SetCursor(3, 1)
		f.SetCursorShape(CursorBar)
		if f.cursor == nil || f.cursor.X != 3 || f.cursor.Y != 1 || f.cursor.Shape != CursorBar {
			t.Errorf("cursor = %+v", f.cursor)
		}
		f.HideCursor()
		if f.cursor != nil {
			t.Error("HideCursor must withdraw the request")
		}
	})

	t.Run("DegradationVisible", func(t *testing.T) {
		f := newFrame(NewBuffer(10, 2), NewGraphemePool(), DegradeNoColors)
		if f.DegradationLevel() != DegradeNoColors {
			t.Error("degradation level not exposed")
		}
	})
}

func TestTermWriter(t *testing.T) {
	t.Run("PoisonOnFailure", func(t *testing.T) {
		w := NewTermWriter(failWriter{})
		if _, err := w.Write([]byte("x")); err == nil {
			t.Fatal("expected failure")
		}
		if w.Err() == nil {
			t.Error("writer not poisoned")
		}
		if _, err := w.Write([]byte("y")); err == nil {
			t.Error("poisoned writer accepted a write")
		}
	})

	t.Run("RawBypassesPoison", func(t *testing.T) {
		w := NewTermWriter(&limitedWriter{n: 4})
		w.Write([]byte("abcdefgh")) // poisons
		if w.Err() == nil {
			t.Fatal("expected poison")
		}
		w.writeRaw([]byte("ok")) // teardown path still tries
	})
}
