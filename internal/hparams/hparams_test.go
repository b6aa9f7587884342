package hparams

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCreate_NilSource(t *testing.T) {
	if _, err := Create(nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreate_BlobOverlaysDefaults(t *testing.T) {
	h, err := Create(Blob(`{"n_mel_channels": 40, "sampling_rate": 16000, "mel_fmax": 7600}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if h.NMelChannels != 40 || h.SamplingRate != 16000 || h.MelFmax != 7600 {
		t.Errorf("overlay not applied: %+v", h)
	}
	// 未出现的字段保留默认值
	if h.HopLength != 256 || h.MaxDecoderSteps != 1000 || h.Backend != "onnx" {
		t.Errorf("defaults lost: hop=%d steps=%d backend=%s", h.HopLength, h.MaxDecoderSteps, h.Backend)
	}
	if h.Version != CurrentVersion {
		t.Errorf("version = %d, want %d", h.Version, CurrentVersion)
	}
}

func TestCreate_MalformedBlob(t *testing.T) {
	if _, err := Create(Blob(`{"n_mel_channels": `)); err == nil {
		t.Error("expected parse error")
	}
}

func TestMigrate_LegacyLanguage(t *testing.T) {
	h, err := Create(Blob(`{"language": "ru"}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if h.Charset != "ru" {
		t.Errorf("charset = %q, want ru", h.Charset)
	}
	if h.Language != "" {
		t.Errorf("legacy field should be cleared, got %q", h.Language)
	}
}

func TestMigrate_LanguageWinsOverCharset(t *testing.T) {
	in := Defaults()
	in.Charset = "en"
	in.Language = "zh_pinyin"

	out := Migrate(in)
	if out.Charset != "zh_pinyin" {
		t.Errorf("charset = %q, want zh_pinyin", out.Charset)
	}
	// 纯函数：入参不变
	if in.Language != "zh_pinyin" || in.Version != 0 {
		t.Errorf("Migrate mutated its input: %+v", in)
	}
}

func TestMigrate_CurrentConfigUntouched(t *testing.T) {
	in := Defaults()
	in.Version = CurrentVersion
	in.Charset = "zh_pinyin"
	out := Migrate(in)
	if out.Charset != "zh_pinyin" || out.Version != CurrentVersion {
		t.Errorf("unexpected migration result: %+v", out)
	}
}

func TestFile_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "hparams.yaml")
	if err := os.WriteFile(yamlPath, []byte("n_mel_channels: 64\nlanguage: en\ngate_threshold: 0.6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	h, err := Create(File(yamlPath))
	if err != nil {
		t.Fatalf("Create(yaml) failed: %v", err)
	}
	if h.NMelChannels != 64 || h.GateThreshold != 0.6 || h.Charset != "en" {
		t.Errorf("yaml overlay wrong: %+v", h)
	}

	jsonPath := filepath.Join(dir, "hparams.json")
	if err := os.WriteFile(jsonPath, []byte(`{"hop_length": 200, "win_length": 800}`), 0644); err != nil {
		t.Fatal(err)
	}
	h, err = Create(File(jsonPath))
	if err != nil {
		t.Fatalf("Create(json) failed: %v", err)
	}
	if h.HopLength != 200 || h.WinLength != 800 {
		t.Errorf("json overlay wrong: %+v", h)
	}

	if _, err := Create(File(filepath.Join(dir, "missing.json"))); err == nil {
		t.Error("expected error for missing file")
	}
	txt := filepath.Join(dir, "hparams.txt")
	if err := os.WriteFile(txt, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(File(txt)); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestMapAndValue(t *testing.T) {
	h, err := Create(Map{"n_frames_per_step": 2, "charset": "zh_pinyin"})
	if err != nil {
		t.Fatalf("Create(map) failed: %v", err)
	}
	if h.NFramesPerStep != 2 || h.Charset != "zh_pinyin" {
		t.Errorf("map overlay wrong: %+v", h)
	}

	v := Defaults()
	v.NMelChannels = 8
	h, err = Create(Value(v))
	if err != nil {
		t.Fatalf("Create(value) failed: %v", err)
	}
	if h.NMelChannels != 8 {
		t.Errorf("value source ignored: %d", h.NMelChannels)
	}
}

func TestValidate(t *testing.T) {
	bad := []Map{
		{"n_mel_channels": 0},
		{"hop_length": -1},
		{"win_length": 2048},
		{"mel_fmax": 20000},
		{"mel_fmin": 9000},
		{"gate_threshold": 1.5},
	}
	for _, m := range bad {
		if _, err := Create(m); err == nil {
			t.Errorf("expected validation error for %v", m)
		}
	}
}

func TestJSONRoundTripKeepsCharset(t *testing.T) {
	h := Defaults()
	h.Charset = "zh_pinyin"
	blob, err := h.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	back, err := Create(Blob(blob))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if back.Charset != "zh_pinyin" {
		t.Errorf("charset = %q", back.Charset)
	}
}
