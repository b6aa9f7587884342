package device

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Device
	}{
		{"", CPUDevice},
		{"cpu", CPUDevice},
		{" CPU ", CPUDevice},
		{"cuda", Device{Kind: CUDA}},
		{"cuda:2", Device{Kind: CUDA, Index: 2}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"tpu", "cuda:x", "cuda:-1", "mps"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) expected error", bad)
		}
	}
}

func TestResolve_FallsBackToCPU(t *testing.T) {
	for _, req := range []Device{CPUDevice, {Kind: CUDA}, {Kind: CUDA, Index: 3}} {
		d, p := Resolve(req, NoAccelerator)
		if d != CPUDevice {
			t.Errorf("Resolve(%v) device = %v, want cpu", req, d)
		}
		if p != Float32 {
			t.Errorf("Resolve(%v) precision = %v, want float32", req, p)
		}
	}

	if d, _ := Resolve(Device{Kind: CUDA}, nil); d != CPUDevice {
		t.Errorf("nil detector should fall back to cpu, got %v", d)
	}
}

func TestResolve_AcceleratorAvailable(t *testing.T) {
	detector := DetectorFunc(func() bool { return true })

	d, p := Resolve(Device{Kind: CUDA, Index: 1}, detector)
	if d.String() != "cuda:1" {
		t.Errorf("device = %v, want cuda:1", d)
	}
	if p != Float16 {
		t.Errorf("precision = %v, want float16", p)
	}

	// 请求 cpu 时即使有加速器也保持 cpu + 全精度
	d, p = Resolve(CPUDevice, detector)
	if d != CPUDevice || p != Float32 {
		t.Errorf("cpu request resolved to %v/%v", d, p)
	}
}

func TestSelect(t *testing.T) {
	// 无加速器时任何请求都回退到 cpu，包括无法识别的设备名
	for _, req := range []string{"", "cpu", "cuda:1", "tpu", "cuda:x"} {
		d, p, err := Select(req, NoAccelerator)
		if err != nil {
			t.Errorf("Select(%q) without accelerator: %v", req, err)
		}
		if d != CPUDevice || p != Float32 {
			t.Errorf("Select(%q) = %v/%v, want cpu/float32", req, d, p)
		}
	}
	if d, _, err := Select("tpu", nil); err != nil || d != CPUDevice {
		t.Errorf("nil detector: %v, %v", d, err)
	}

	detector := DetectorFunc(func() bool { return true })
	d, p, err := Select("cuda:2", detector)
	if err != nil || d.String() != "cuda:2" || p != Float16 {
		t.Errorf("Select(cuda:2) = %v/%v, %v", d, p, err)
	}
	if d, p, err := Select("cpu", detector); err != nil || d != CPUDevice || p != Float32 {
		t.Errorf("Select(cpu) = %v/%v, %v", d, p, err)
	}
	if _, _, err := Select("tpu", detector); err == nil {
		t.Error("expected error for unknown device with accelerator available")
	}
}
