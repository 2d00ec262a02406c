package frame

import (
	"encoding/binary"

	"github.com/go-audio/audio"
)

// EncodePCM packs buf into little-endian signed PCM of bitDepth bits.
// Supported depths are 8, 16, 24 and 32; 8-bit output is unsigned as in WAV.
func EncodePCM(buf *audio.IntBuffer, bitDepth int) ([]byte, error) {
	width, err := sampleWidth(bitDepth)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}

	out := make([]byte, len(buf.Data)*width)
	for i, v := range buf.Data {
		p := out[i*width:]
		switch width {
		case 1:
			p[0] = byte(v + 128)
		case 2:
			binary.LittleEndian.PutUint16(p, uint16(int16(v)))
		case 3:
			u := uint32(int32(v))
			p[0], p[1], p[2] = byte(u), byte(u>>8), byte(u>>16)
		case 4:
			binary.LittleEndian.PutUint32(p, uint32(int32(v)))
		}
	}
	return out, nil
}

// DecodePCM unpacks little-endian PCM into an IntBuffer with the given format.
// A trailing partial sample is ignored.
func DecodePCM(p []byte, format *audio.Format, bitDepth int) (*audio.IntBuffer, error) {
	width, err := sampleWidth(bitDepth)
	if err != nil {
		return nil, err
	}

	data := make([]int, len(p)/width)
	for i := range data {
		s := p[i*width:]
		switch width {
		case 1:
			data[i] = int(s[0]) - 128
		case 2:
			data[i] = int(int16(binary.LittleEndian.Uint16(s)))
		case 3:
			u := uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16
			data[i] = int(int32(u<<8) >> 8)
		case 4:
			data[i] = int(int32(binary.LittleEndian.Uint32(s)))
		}
	}

	return &audio.IntBuffer{
		Format:         format,
		Data:           data,
		SourceBitDepth: bitDepth,
	}, nil
}

func sampleWidth(bitDepth int) (int, error) {
	switch bitDepth {
	case 8, 16, 24, 32:
		return bitDepth / 8, nil
	default:
		return 0, invalidArgument("frame: unsupported bit depth %d", bitDepth)
	}
}
