package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// ReadAudio 按扩展名选择解码器读取音频文件（.wav 或 .mp3）。
func ReadAudio(path string) (*Clip, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return ReadWAV(path)
	case ".mp3":
		return ReadMP3(path)
	default:
		return nil, fmt.Errorf("不支持的音频格式: %s（支持 .wav、.mp3）", path)
	}
}

// ReadMP3 读取 MP3 文件并混为单声道。
func ReadMP3(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开音频文件 %s 失败: %w", path, err)
	}
	defer f.Close()
	return decodeMP3(f)
}

func decodeMP3(r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("MP3 解码失败: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}

	// go-mp3 总是输出立体声 signed 16-bit LE，每帧 4 字节；截掉不完整的尾部帧
	const bytesPerFrame = 4
	pcm = pcm[:len(pcm)/bytesPerFrame*bytesPerFrame]

	ints := make([]int16, len(pcm)/2)
	for i := range ints {
		ints[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}

	return &Clip{
		Samples:        Downmix(Int16ToFloat32(ints), 2),
		SampleRate:     dec.SampleRate(),
		SourceChannels: 2,
		SourceBitDepth: 16,
	}, nil
}
