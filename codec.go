package kvcache

import (
	"github.com/dropbox/godropbox/errors"
)

// A codec for UTF-8 string payloads.
type StringCodec struct {
}

func NewStringCodec() Codec {
	return &StringCodec{}
}

func (c *StringCodec) Encode(value interface{}) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, errors.Newf("StringCodec cannot encode %T", value)
	}
	return []byte(s), nil
}

func (c *StringCodec) Decode(body []byte) (interface{}, error) {
	return string(body), nil
}

// A pass-through codec exposing raw payload bytes.
type RawCodec struct {
}

func NewRawCodec() Codec {
	return &RawCodec{}
}

func (c *RawCodec) Encode(value interface{}) ([]byte, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, errors.Newf("RawCodec cannot encode %T", value)
	}
	return b, nil
}

func (c *RawCodec) Decode(body []byte) (interface{}, error) {
	return body, nil
}
