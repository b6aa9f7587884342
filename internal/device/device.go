// Package device 负责计算设备的解析、加速器探测和精度选择。
//
// 约束：CPU 一律使用全精度（Float32），加速设备一律使用半精度（Float16）。
package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind 设备类型。
type Kind string

const (
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
)

// Device 表示一个计算设备，如 "cpu"、"cuda"、"cuda:1"。
type Device struct {
	Kind  Kind
	Index int // 仅对加速设备有意义
}

// CPUDevice 是回退设备。
var CPUDevice = Device{Kind: CPU}

// Parse 解析设备字符串。空字符串视为 cpu。
func Parse(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(CPU) {
		return CPUDevice, nil
	}

	name, idx, hasIdx := strings.Cut(s, ":")
	if Kind(name) != CUDA {
		return Device{}, fmt.Errorf("不支持的设备类型: %q", s)
	}
	d := Device{Kind: CUDA}
	if hasIdx {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return Device{}, fmt.Errorf("无效的设备编号: %q", s)
		}
		d.Index = n
	}
	return d, nil
}

// IsAccelerated 返回是否为加速设备。
func (d Device) IsAccelerated() bool {
	return d.Kind != CPU
}

func (d Device) String() string {
	if d.Kind == CPU || d.Kind == "" {
		return string(CPU)
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.Index)
}

// Precision 数值精度。
type Precision int

const (
	Float32 Precision = iota
	Float16
)

func (p Precision) String() string {
	if p == Float16 {
		return "float16"
	}
	return "float32"
}

// PrecisionFor 返回设备对应的精度。
func PrecisionFor(d Device) Precision {
	if d.IsAccelerated() {
		return Float16
	}
	return Float32
}

// Detector 探测当前进程是否可以使用加速硬件。
type Detector interface {
	AcceleratorAvailable() bool
}

// DetectorFunc 让普通函数满足 Detector。
type DetectorFunc func() bool

// AcceleratorAvailable 实现 Detector。
func (f DetectorFunc) AcceleratorAvailable() bool { return f() }

// NoAccelerator 总是报告不可用。
var NoAccelerator Detector = DetectorFunc(func() bool { return false })

// Resolve 仅在加速硬件可用时采用请求的设备，否则回退到 CPU。
func Resolve(requested Device, detector Detector) (Device, Precision) {
	if detector == nil {
		detector = NoAccelerator
	}
	d := requested
	if !detector.AcceleratorAvailable() {
		d = CPUDevice
	}
	return d, PrecisionFor(d)
}

// Select 解析请求的设备字符串并决定实际设备与精度。
// 加速硬件不可用时直接回退到 CPU，不校验请求字符串；
// 只有在可以真正使用加速器时，无法识别的设备名才会报错。
func Select(requested string, detector Detector) (Device, Precision, error) {
	if detector == nil || !detector.AcceleratorAvailable() {
		return CPUDevice, Float32, nil
	}
	d, err := Parse(requested)
	if err != nil {
		return Device{}, Float32, err
	}
	return d, PrecisionFor(d), nil
}
