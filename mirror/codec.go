package mirror

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/routesync/xerrors"
)

// ErrUnsupportedCodec 不支持的编码
var ErrUnsupportedCodec = xerrors.New("mirror: unsupported codec")

// Codec 快照编码
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string                          { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)         { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, dest any) error { return json.Unmarshal(data, dest) }

// msgpackCodec 体积比 JSON 小，适合路由很多时的镜像
type msgpackCodec struct{}

func (msgpackCodec) Name() string                          { return "msgpack" }
func (msgpackCodec) Marshal(v any) ([]byte, error)         { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, dest any) error { return msgpack.Unmarshal(data, dest) }

// NewCodec 支持 "json"（默认）和 "msgpack"
func NewCodec(name string) (Codec, error) {
	switch name {
	case "json", "":
		return jsonCodec{}, nil
	case "msgpack":
		return msgpackCodec{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedCodec, "codec %q", name)
	}
}
