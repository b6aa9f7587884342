package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Clip 是一段单声道浮点音频。
type Clip struct {
	Samples    []float32
	SampleRate int
	// SourceChannels/SourceBitDepth 记录原文件的声道数和位深。
	SourceChannels int
	SourceBitDepth int
}

// Duration 返回时长（秒）。
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadWAV 读取 PCM WAV 文件，多声道混为单声道并归一化到 [-1, 1)。
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开音频文件 %s 失败: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s 不是有效的 WAV 文件", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("解码 WAV %s 失败: %w", path, err)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	samples := Downmix(PCMToFloat32(buf.Data, bitDepth), channels)

	return &Clip{
		Samples:        samples,
		SampleRate:     int(dec.SampleRate),
		SourceChannels: channels,
		SourceBitDepth: bitDepth,
	}, nil
}

// WriteWAV 把单声道浮点样本写成 16 位 PCM WAV 文件。
func WriteWAV(path string, samples []float32, sampleRate int) error {
	return writeWAV(path, samples, sampleRate, 16)
}

func writeWAV(path string, samples []float32, sampleRate, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建音频文件 %s 失败: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Data:           Float32ToPCM(samples, bitDepth),
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("写入 WAV %s 失败: %w", path, err)
	}
	return enc.Close()
}
