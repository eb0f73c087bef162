// file: internal/adapter/datasource/redis/codec.go
package redis

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec 决定记录在 Redis 中的序列化格式
type Codec interface {
	Name() string
	Encode(record map[string]any) ([]byte, error)
	Decode(data []byte) (map[string]any, error)
}

// NewCodec 按名称返回编解码器，留空为 json。
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return jsonCodec{}, nil
	case "msgpack":
		return msgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown record codec '%s' (expected json or msgpack)", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(record map[string]any) ([]byte, error) { return json.Marshal(record) }

// Decode 保留整数精度：整数还原为 int64，其余数字为 float64
func (jsonCodec) Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return fixNumbers(out).(map[string]any), nil
}

func fixNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, it := range t {
			t[k] = fixNumbers(it)
		}
		return t
	case []any:
		for i, it := range t {
			t[i] = fixNumbers(it)
		}
		return t
	}
	return v
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Encode(record map[string]any) ([]byte, error) {
	data, err := msgpack.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}
	return data, nil
}

// Decode 使用宽松的接口解码，整数统一为 int64 / uint64
func (msgpackCodec) Decode(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty MessagePack data")
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode MessagePack: %w", err)
	}
	return out, nil
}
