package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iabetor/melgen/internal/audio"
	"github.com/iabetor/melgen/internal/checkpoint"
	"github.com/iabetor/melgen/internal/hparams"
	"github.com/iabetor/melgen/internal/melio"
	"github.com/iabetor/melgen/internal/model/modeltest"
	"github.com/iabetor/melgen/internal/model/onnxnet"
)

// testEnv 准备检查点和指向临时目录的配置文件。
type testEnv struct {
	dir        string
	config     string
	checkpoint string
}

func newTestEnv(t *testing.T, nMel int) *testEnv {
	t.Helper()
	dir := t.TempDir()

	h := hparams.Defaults()
	h.Backend = modeltest.Backend
	h.NMelChannels = nMel
	blob, err := h.JSON()
	if err != nil {
		t.Fatalf("hparams json: %v", err)
	}
	ckpt := filepath.Join(dir, "tacotron2.ckpt")
	if err := checkpoint.Save(ckpt, &checkpoint.Checkpoint{
		Hparams:   blob,
		StateDict: checkpoint.StateDict{modeltest.WeightsKey: {0x01}},
		Iteration: 1200,
	}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	cfgPath := filepath.Join(dir, "melgen.yaml")
	cfg := "model:\n  device: cpu\ncatalog:\n  db_path: " + filepath.Join(dir, "catalog.db") + "\nlog:\n  level: warn\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	// 用最小后端代替 ONNX Runtime
	initRuntime = func(onnxnet.Runtime) error {
		modeltest.Register(4, nil)
		return nil
	}
	t.Cleanup(func() { initRuntime = onnxnet.Init })

	return &testEnv{dir: dir, config: cfgPath, checkpoint: ckpt}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// 包级 flag 变量在多次执行之间保留，逐一复位
	synthIDs, synthGate = "", 0
	synthOutput, melOutput = "mel.npy", "mel.npy"
	infoFormat, runsLimit = "json", 20

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--config", e.config, "--checkpoint", e.checkpoint))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSynth_IDs(t *testing.T) {
	env := newTestEnv(t, 10)
	out := filepath.Join(env.dir, "ids.npy")

	stdout, err := env.run(t, "synth", "--ids", "1, 2,3,4,5,6", "-o", out)
	if err != nil {
		t.Fatalf("synth failed: %v", err)
	}
	if !strings.HasPrefix(stdout, out) {
		t.Errorf("unexpected output %q", stdout)
	}

	mel, err := melio.ReadNPY(out)
	if err != nil {
		t.Fatalf("ReadNPY failed: %v", err)
	}
	if mel.Dim(0) != 10 || mel.Dim(1) != 4 {
		t.Errorf("mel shape = %v, want [10 4]", mel.Shape)
	}

	// 推理被记录到目录
	runs, err := env.run(t, "runs")
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	if !strings.Contains(runs, env.checkpoint) || !strings.Contains(runs, "cpu") {
		t.Errorf("run not listed:\n%s", runs)
	}
}

func TestSynth_Text(t *testing.T) {
	env := newTestEnv(t, 10)
	out := filepath.Join(env.dir, "text.npy")

	if _, err := env.run(t, "synth", "Hello, world.", "-o", out); err != nil {
		t.Fatalf("synth failed: %v", err)
	}
	mel, err := melio.ReadNPY(out)
	if err != nil {
		t.Fatalf("ReadNPY failed: %v", err)
	}
	if mel.Dim(0) != 10 {
		t.Errorf("channels = %d, want 10", mel.Dim(0))
	}
}

func TestSynth_Errors(t *testing.T) {
	env := newTestEnv(t, 10)

	if _, err := env.run(t, "synth"); err == nil {
		t.Error("expected error without text or ids")
	}
	if _, err := env.run(t, "synth", "hi", "--ids", "1"); err == nil {
		t.Error("expected error with both text and ids")
	}
	if _, err := env.run(t, "synth", "--ids", "1,x"); err == nil {
		t.Error("expected error for invalid id")
	}
	if _, err := env.run(t, "synth", "###"); err == nil {
		t.Error("expected error for text without usable symbols")
	}
}

func TestMel(t *testing.T) {
	env := newTestEnv(t, 80)

	const sr = 22050
	samples := make([]float32, sr/10)
	for i := range samples {
		samples[i] = 0.3 * float32(math.Sin(2*math.Pi*1000*float64(i)/sr))
	}
	wavPath := filepath.Join(env.dir, "tone.wav")
	if err := audio.WriteWAV(wavPath, samples, sr); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(env.dir, "tone.npy")
	if _, err := env.run(t, "mel", wavPath, "-o", out); err != nil {
		t.Fatalf("mel failed: %v", err)
	}
	mel, err := melio.ReadNPY(out)
	if err != nil {
		t.Fatalf("ReadNPY failed: %v", err)
	}
	// 帧数 = 1 + len/hop_length
	if mel.Dim(0) != 80 || mel.Dim(1) != 1+len(samples)/256 {
		t.Errorf("mel shape = %v", mel.Shape)
	}

	wrongRate := filepath.Join(env.dir, "16k.wav")
	if err := audio.WriteWAV(wrongRate, samples, 16000); err != nil {
		t.Fatal(err)
	}
	if _, err := env.run(t, "mel", wrongRate, "-o", out); err == nil {
		t.Error("expected sample rate mismatch error")
	}

	// MP3 同样被解码：44.1 kHz 静音帧在采样率检查处失败，而不是格式错误
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	mp3Path := filepath.Join(env.dir, "silence.mp3")
	if err := os.WriteFile(mp3Path, bytes.Repeat(frame, 8), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = env.run(t, "mel", mp3Path, "-o", out)
	if err == nil || !strings.Contains(err.Error(), "44100") {
		t.Errorf("expected sample rate mismatch for mp3, got %v", err)
	}
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t, 12)

	stdout, err := env.run(t, "info")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}

	var info struct {
		Digest    string         `json:"digest"`
		Iteration int64          `json:"iteration"`
		Embedded  bool           `json:"embedded_hparams"`
		StateDict []string       `json:"state_dict"`
		Hparams   map[string]any `json:"hparams"`
	}
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
	if !info.Embedded || info.Iteration != 1200 || len(info.Digest) != 64 {
		t.Errorf("unexpected info: %+v", info)
	}
	if len(info.StateDict) != 1 || info.StateDict[0] != modeltest.WeightsKey {
		t.Errorf("state_dict = %v", info.StateDict)
	}
	if info.Hparams["n_mel_channels"] != float64(12) {
		t.Errorf("n_mel_channels = %v", info.Hparams["n_mel_channels"])
	}
	if _, ok := info.Hparams["language"]; ok {
		t.Error("legacy language field should not be printed")
	}

	yamlOut, err := env.run(t, "info", "-f", "yaml")
	if err != nil {
		t.Fatalf("info yaml failed: %v", err)
	}
	if !strings.Contains(yamlOut, "n_mel_channels: 12") {
		t.Errorf("unexpected yaml output:\n%s", yamlOut)
	}

	if _, err := env.run(t, "info", "-f", "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
