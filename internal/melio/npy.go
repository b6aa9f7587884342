// Package melio 以 NumPy .npy 格式读写梅尔谱，便于声码器和 Python 工具直接加载。
package melio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/sbinet/npyio/npy"

	"github.com/iabetor/melgen/internal/tensor"
)

// WriteNPY 把二维梅尔谱 [n_mel, frames] 以 float32（'<f4'）写入 path。
// 前导大小为 1 的维度（如 batch）会被去掉。
func WriteNPY(path string, mel *tensor.Tensor) error {
	rows, cols, err := matrixShape(mel.Shape)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 %s 失败: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := writeFloat32Matrix(w, mel.Data, rows, cols); err != nil {
		f.Close()
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return f.Close()
}

// writeFloat32Matrix 写出 NPY 1.0 格式的二维 float32 数组（C 顺序）。
// npy.Write 只会为 mat.Dense 写出二维形状，且固定为 '<f8'。
func writeFloat32Matrix(w *bufio.Writer, data []float32, rows, cols int) error {
	const prelude = len(npy.Magic) + 2 + 2 // magic + 版本 + 头长度

	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", rows, cols)
	// 头部（含结尾换行）按 64 字节对齐
	if pad := (64 - (prelude+hdr.Len()+1)%64) % 64; pad > 0 {
		hdr.Write(bytes.Repeat([]byte{' '}, pad))
	}
	hdr.WriteByte('\n')

	w.Write(npy.Magic[:])
	w.Write([]byte{1, 0})
	if err := binary.Write(w, binary.LittleEndian, uint16(hdr.Len())); err != nil {
		return err
	}
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}

	var buf [4]byte
	for _, v := range data[:rows*cols] {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadNPY 读取二维数组，如 WriteNPY 的输出。
func ReadNPY(path string) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 %s 失败: %w", path, err)
	}
	defer f.Close()

	r, err := npy.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("解析 %s 头部失败: %w", path, err)
	}
	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("%s 不是二维数组: shape=%v", path, shape)
	}

	data := make([]float32, shape[0]*shape[1])
	switch r.Header.Descr.Type {
	case "<f4":
		err = r.Read(&data)
	case "<f8":
		// numpy 默认的 float64 数组
		raw := make([]float64, len(data))
		err = r.Read(&raw)
		for i, v := range raw {
			data[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("%s 的 dtype %s 不受支持", path, r.Header.Descr.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return tensor.FromData(data, shape[0], shape[1])
}

func matrixShape(shape []int) (int, int, error) {
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 || shape[0] == 0 || shape[1] == 0 {
		return 0, 0, fmt.Errorf("melio: 需要非空二维梅尔谱，实际形状 %v", shape)
	}
	return shape[0], shape[1], nil
}
