package onnxnet

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// feed 是一个图输入，Float/Int/Bool 三者只用其一。
type feed struct {
	Shape []int64
	Float []float32
	Int   []int64
	Bool  []bool
}

// output 是一个 float32 图输出。
type output struct {
	Shape []int64
	Data  []float32
}

// executor 按输入名顺序执行一张图。ORT 会话和测试替身都实现它。
type executor interface {
	run(feeds []feed) ([]output, error)
	close()
}

// sessionExec 用 ort.DynamicAdvancedSession 实现 executor，
// 每次 run 创建并销毁全部输入输出张量。
type sessionExec struct {
	name    string
	session *ort.DynamicAdvancedSession
	nOut    int
}

func newSessionExec(name string, graph []byte, inputs, outputs []string, opts *ort.SessionOptions) (*sessionExec, error) {
	s, err := ort.NewDynamicAdvancedSessionWithONNXData(graph, inputs, outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("[onnx] 加载 %s 失败: %w", name, err)
	}
	return &sessionExec{name: name, session: s, nOut: len(outputs)}, nil
}

func (e *sessionExec) run(feeds []feed) ([]output, error) {
	inputs := make([]ort.Value, 0, len(feeds))
	defer func() { destroyAll(inputs) }()
	for i, f := range feeds {
		v, err := f.value()
		if err != nil {
			return nil, fmt.Errorf("[onnx] %s 第 %d 个输入: %w", e.name, i, err)
		}
		inputs = append(inputs, v)
	}

	outputs := make([]ort.Value, e.nOut)
	if err := e.session.Run(inputs, outputs); err != nil {
		destroyAll(outputs)
		return nil, fmt.Errorf("[onnx] %s 推理失败: %w", e.name, err)
	}
	defer destroyAll(outputs)

	res := make([]output, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("[onnx] %s 输出 %d 不是 float32 张量: %T", e.name, i, v)
		}
		res[i] = output{
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), t.GetData()...),
		}
	}
	return res, nil
}

func (e *sessionExec) close() {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
}

func (f feed) value() (ort.Value, error) {
	shape := ort.NewShape(f.Shape...)
	switch {
	case f.Int != nil:
		return ort.NewTensor(shape, f.Int)
	case f.Bool != nil:
		raw := make([]byte, len(f.Bool))
		for i, b := range f.Bool {
			if b {
				raw[i] = 1
			}
		}
		return ort.NewCustomDataTensor(shape, raw, ort.TensorElementDataTypeBool)
	default:
		return ort.NewTensor(shape, f.Float)
	}
}

// graphInputs 返回图声明的输入名称。
func graphInputs(graph []byte) ([]string, error) {
	inputs, _, err := ort.GetInputOutputInfoWithONNXData(graph)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	return names, nil
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}
