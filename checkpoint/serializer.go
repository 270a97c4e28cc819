package checkpoint

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// serializer 检查点编解码接口（内部使用）
type serializer interface {
	Marshal(cp *Checkpoint) ([]byte, error)
	Unmarshal(data []byte) (*Checkpoint, error)
}

// msgpackSerializer MessagePack 编解码，体积小、速度快，默认选择
type msgpackSerializer struct{}

func (msgpackSerializer) Marshal(cp *Checkpoint) ([]byte, error) {
	return msgpack.Marshal(cp)
}

func (msgpackSerializer) Unmarshal(data []byte) (*Checkpoint, error) {
	cp := &Checkpoint{}
	if err := msgpack.Unmarshal(data, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// jsonSerializer JSON 编解码，便于人工排查 Redis 里的检查点内容
type jsonSerializer struct{}

func (jsonSerializer) Marshal(cp *Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func (jsonSerializer) Unmarshal(data []byte) (*Checkpoint, error) {
	cp := &Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func newSerializer(kind string) (serializer, error) {
	switch kind {
	case "msgpack", "":
		return msgpackSerializer{}, nil
	case "json":
		return jsonSerializer{}, nil
	default:
		return nil, ErrUnsupportedSerializer
	}
}
