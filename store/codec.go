package store

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// DefaultChunkSizeKB 数组编码分片的上限
// 大数组 Base64 后切成不超过该大小的段落存储，读取时重新拼接
const DefaultChunkSizeKB = 400

// ErrUnsupportedType 动态状态里出现了不支持持久化的值类型
var ErrUnsupportedType = errors.New("unsupported value type")

// 编码后的值是单键映射，键标明类型:
//   NULL / BOOL / N(整数) / F(浮点) / S(字符串)
//   LF(float64 数组分片) / LI(int64 数组分片) / L(通用列表) / M(嵌套映射)

// EncodeState 把策略动态状态编码成可 JSON 序列化的类型标注映射
func EncodeState(state map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(state))
	for k, v := range state {
		enc, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

// DecodeState 还原 EncodeState 的输出
// 任何一个值无法还原都整体失败，调用方应退回全新的默认状态
func DecodeState(encoded map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(encoded))
	for k, v := range encoded {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode key %q: not an encoded value: %w", k, ErrUnsupportedType)
		}
		dec, err := decodeValue(m)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", k, err)
		}
		out[k] = dec
	}
	return out, nil
}

func encodeValue(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{"NULL": true}, nil
	case bool:
		return map[string]any{"BOOL": t}, nil
	case int:
		return map[string]any{"N": strconv.FormatInt(int64(t), 10)}, nil
	case int64:
		return map[string]any{"N": strconv.FormatInt(t, 10)}, nil
	case uint64:
		return map[string]any{"N": strconv.FormatUint(t, 10)}, nil
	case float64:
		return map[string]any{"F": strconv.FormatFloat(t, 'g', -1, 64)}, nil
	case string:
		return map[string]any{"S": t}, nil
	case []float64:
		return map[string]any{"LF": chunkBytes(floatsToBytes(t))}, nil
	case []int64:
		return map[string]any{"LI": chunkBytes(intsToBytes(t))}, nil
	case []any:
		list := make([]any, 0, len(t))
		for _, e := range t {
			enc, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			list = append(list, enc)
		}
		return map[string]any{"L": list}, nil
	case map[string]any:
		nested, err := EncodeState(t)
		if err != nil {
			return nil, err
		}
		return map[string]any{"M": nested}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func decodeValue(m map[string]any) (any, error) {
	if _, ok := m["NULL"]; ok {
		return nil, nil
	}
	if v, ok := m["BOOL"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("BOOL holds %T: %w", v, ErrUnsupportedType)
		}
		return b, nil
	}
	if v, ok := m["N"]; ok {
		switch t := v.(type) {
		case string:
			n, err := strconv.ParseInt(t, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse N: %w", err)
			}
			return n, nil
		case float64:
			return int64(t), nil
		}
		return nil, fmt.Errorf("N holds %T: %w", v, ErrUnsupportedType)
	}
	if v, ok := m["F"]; ok {
		switch t := v.(type) {
		case string:
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, fmt.Errorf("parse F: %w", err)
			}
			return f, nil
		case float64:
			return t, nil
		}
		return nil, fmt.Errorf("F holds %T: %w", v, ErrUnsupportedType)
	}
	if v, ok := m["S"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("S holds %T: %w", v, ErrUnsupportedType)
		}
		return s, nil
	}
	if v, ok := m["LF"]; ok {
		raw, err := joinChunks(v)
		if err != nil {
			return nil, err
		}
		return bytesToFloats(raw)
	}
	if v, ok := m["LI"]; ok {
		raw, err := joinChunks(v)
		if err != nil {
			return nil, err
		}
		return bytesToInts(raw)
	}
	if v, ok := m["L"]; ok {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("L holds %T: %w", v, ErrUnsupportedType)
		}
		out := make([]any, 0, len(list))
		for _, e := range list {
			em, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("L element holds %T: %w", e, ErrUnsupportedType)
			}
			dec, err := decodeValue(em)
			if err != nil {
				return nil, err
			}
			out = append(out, dec)
		}
		return out, nil
	}
	if v, ok := m["M"]; ok {
		nested, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("M holds %T: %w", v, ErrUnsupportedType)
		}
		return DecodeState(nested)
	}
	return nil, fmt.Errorf("unknown type tag: %w", ErrUnsupportedType)
}

// ---- 数组 <-> 字节 <-> 分片 ----

func floatsToBytes(xs []float64) []byte {
	buf := make([]byte, 8*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func bytesToFloats(raw []byte) ([]float64, error) {
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("float array payload not a multiple of 8 bytes")
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

func intsToBytes(xs []int64) []byte {
	buf := make([]byte, 8*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(x))
	}
	return buf
}

func bytesToInts(raw []byte) ([]int64, error) {
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("int array payload not a multiple of 8 bytes")
	}
	out := make([]int64, len(raw)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

func chunkBytes(raw []byte) map[string]any {
	encoded := base64.StdEncoding.EncodeToString(raw)
	chunkSize := DefaultChunkSizeKB * 1024
	chunks := map[string]any{}
	for i := 0; i*chunkSize < len(encoded); i++ {
		end := (i + 1) * chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		chunks[strconv.Itoa(i)] = encoded[i*chunkSize : end]
	}
	return chunks
}

func joinChunks(v any) ([]byte, error) {
	chunks, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("chunk set holds %T: %w", v, ErrUnsupportedType)
	}
	var combined string
	for i := 0; i < len(chunks); i++ {
		part, ok := chunks[strconv.Itoa(i)]
		if !ok {
			return nil, fmt.Errorf("missing chunk %d of %d", i, len(chunks))
		}
		s, ok := part.(string)
		if !ok {
			return nil, fmt.Errorf("chunk %d holds %T: %w", i, part, ErrUnsupportedType)
		}
		combined += s
	}
	return base64.StdEncoding.DecodeString(combined)
}
