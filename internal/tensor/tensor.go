// Package tensor 提供推理结果使用的最小稠密张量。
package tensor

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/iabetor/melgen/internal/device"
)

// Tensor 是行主序的 float32 张量。Precision 为 Float16 时，
// Data 中的每个值都已舍入到半精度可表示的数。
type Tensor struct {
	Shape     []int
	Data      []float32
	Precision device.Precision
}

// New 创建指定形状的零张量。
func New(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, numel(shape))}
}

// FromData 用已有数据创建张量，数据长度必须与形状一致。
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("tensor: 形状 %v 需要 %d 个元素，实际 %d", shape, n, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Numel 返回元素个数。
func (t *Tensor) Numel() int { return numel(t.Shape) }

// Dim 返回第 i 维的大小，支持负下标。
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Reshape 返回共享数据的新视图。
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if numel(shape) != len(t.Data) {
		return nil, fmt.Errorf("tensor: 无法将 %v reshape 为 %v", t.Shape, shape)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: t.Data, Precision: t.Precision}, nil
}

// At2 读取二维张量的元素。
func (t *Tensor) At2(i, j int) float32 {
	return t.Data[i*t.Shape[1]+j]
}

// To 转换精度。转换到 Float16 时就地舍入。
func (t *Tensor) To(p device.Precision) *Tensor {
	if p == device.Float16 && t.Precision != device.Float16 {
		for i, v := range t.Data {
			t.Data[i] = float16.Fromfloat32(v).Float32()
		}
	}
	t.Precision = p
	return t
}

// Int64 是符号序列等整型输入使用的张量。
type Int64 struct {
	Shape  []int
	Data   []int64
	Device device.Device
}

// Int64Row 把一维序列包装成 [1, L] 的批次。
func Int64Row(seq []int64, dev device.Device) *Int64 {
	return &Int64{Shape: []int{1, len(seq)}, Data: append([]int64(nil), seq...), Device: dev}
}

// Len 返回最后一维长度。
func (t *Int64) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[len(t.Shape)-1]
}
