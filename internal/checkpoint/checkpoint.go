// Package checkpoint 读写模型检查点。
//
// 检查点是一个 msgpack 编码的 map：
//
//	hparams        可选，JSON 字符串形式的超参数
//	state_dict     名称 → 权重/计算图字节（ONNX 后端为 encoder、decoder_iter、postnet）
//	iteration      可选，训练步数
//	learning_rate  可选，保存时的学习率
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/iabetor/melgen/internal/device"
)

// StateDict 保存训练好的参数，键为子网络名称。
type StateDict map[string][]byte

// Keys 返回排好序的键。
func (sd StateDict) Keys() []string {
	keys := make([]string, 0, len(sd))
	for k := range sd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Checkpoint 是加载后的检查点，构造后不再修改。
type Checkpoint struct {
	Hparams      string    `msgpack:"hparams,omitempty"`
	StateDict    StateDict `msgpack:"state_dict"`
	Iteration    int64     `msgpack:"iteration,omitempty"`
	LearningRate float64   `msgpack:"learning_rate,omitempty"`

	device device.Device
	digest string
	size   int64
}

// Load 读取 path 处的检查点并绑定到 dev。
func Load(path string, dev device.Device) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data, dev)
}

// Decode 从内存字节解码检查点。
func Decode(data []byte, dev device.Device) (*Checkpoint, error) {
	ckpt := &Checkpoint{}
	if err := msgpack.Unmarshal(data, ckpt); err != nil {
		return nil, fmt.Errorf("checkpoint: 解码失败: %w", err)
	}
	sum := sha256.Sum256(data)
	ckpt.digest = hex.EncodeToString(sum[:])
	ckpt.size = int64(len(data))
	ckpt.device = dev
	return ckpt, nil
}

// Save 将检查点写入 path。
func Save(path string, ckpt *Checkpoint) error {
	data, err := msgpack.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("checkpoint: 编码失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("checkpoint: 写入 %s 失败: %w", path, err)
	}
	return nil
}

// HasHparams 返回检查点是否内嵌了超参数。
func (c *Checkpoint) HasHparams() bool {
	return c.Hparams != ""
}

// Device 返回加载时指定的设备。
func (c *Checkpoint) Device() device.Device { return c.device }

// Digest 返回原始文件的 SHA-256（十六进制）。
func (c *Checkpoint) Digest() string { return c.digest }

// Size 返回原始文件字节数。
func (c *Checkpoint) Size() int64 { return c.size }
