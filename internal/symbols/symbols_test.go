package symbols

import "testing"

func TestLookup(t *testing.T) {
	for _, name := range []string{"en", "zh_pinyin"} {
		cs, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s) failed: %v", name, err)
		}
		if cs.Name() != name {
			t.Errorf("name = %s", cs.Name())
		}
		// 必须能放进默认 n_symbols=148 的嵌入表
		if cs.Size() > 148 {
			t.Errorf("%s has %d symbols", name, cs.Size())
		}
	}
	if _, err := Lookup("klingon"); err == nil {
		t.Error("expected error for unknown charset")
	}
}

func TestEnglishCleaners(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Hello   World ", "hello world"},
		{"Dr. Smith met Mr. Jones.", "doctor smith met mister jones."},
		{"Mrs. Brown", "misess brown"},
	}
	for _, tt := range tests {
		if got := englishCleaners(tt.in); got != tt.want {
			t.Errorf("englishCleaners(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeDecode_English(t *testing.T) {
	cs, _ := Lookup("en")
	ids := cs.Encode("Hi, there!")
	if got := cs.Decode(ids); got != "hi, there!" {
		t.Errorf("round trip = %q", got)
	}
	for _, id := range ids {
		if id == 0 {
			t.Error("pad symbol must not appear in encoded text")
		}
	}

	// 符号表之外的字符被丢弃
	if got := cs.Decode(cs.Encode("a#b@c")); got != "abc" {
		t.Errorf("unknown characters not dropped: %q", got)
	}
	if got := cs.Decode([]int64{-1, 9999}); got != "" {
		t.Errorf("out-of-range ids should be ignored, got %q", got)
	}
}

func TestPinyinCleaners(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"你好", "ni3 hao3"},
		{"中国，你好！", "zhong1 guo2, ni3 hao3!"},
		{"Hi 你好", "hi ni3 hao3"},
	}
	for _, tt := range tests {
		if got := pinyinCleaners(tt.in); got != tt.want {
			t.Errorf("pinyinCleaners(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncode_Pinyin(t *testing.T) {
	cs, _ := Lookup("zh_pinyin")
	ids := cs.Encode("你好")
	if got := cs.Decode(ids); got != "ni3 hao3" {
		t.Errorf("decoded = %q", got)
	}
}
