package message

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// wireField carries one tag in canonical string form plus its kind, so the
// decoder restores the typed value exactly.
type wireField struct {
	Tag  int    `msgpack:"t"`
	Kind uint8  `msgpack:"k"`
	Val  string `msgpack:"v"`
}

type wireMessage struct {
	Header []wireField `msgpack:"h"`
	Body   []wireField `msgpack:"b"`
}

func packFields(f *Fields) []wireField {
	out := make([]wireField, 0, f.Len())
	for _, tag := range f.Tags() {
		v := f.m[tag]
		out = append(out, wireField{Tag: tag, Kind: uint8(v.kind), Val: v.canonical()})
	}
	return out
}

func unpackFields(dst *Fields, fields []wireField) error {
	for _, wf := range fields {
		switch Kind(wf.Kind) {
		case KindString:
			dst.SetString(wf.Tag, wf.Val)
		case KindInt:
			n, err := strconv.ParseInt(wf.Val, 10, 64)
			if err != nil {
				return fmt.Errorf("decode tag %d: %w", wf.Tag, err)
			}
			dst.SetInt(wf.Tag, n)
		case KindDecimal:
			d, err := decimal.NewFromString(wf.Val)
			if err != nil {
				return fmt.Errorf("decode tag %d: %w", wf.Tag, err)
			}
			dst.SetDecimal(wf.Tag, d)
		case KindChar:
			if len(wf.Val) != 1 {
				return fmt.Errorf("decode tag %d: char value %q", wf.Tag, wf.Val)
			}
			dst.SetChar(wf.Tag, wf.Val[0])
		case KindTime:
			ts, err := time.Parse(time.RFC3339Nano, wf.Val)
			if err != nil {
				return fmt.Errorf("decode tag %d: %w", wf.Tag, err)
			}
			dst.SetTime(wf.Tag, ts)
		default:
			return fmt.Errorf("decode tag %d: unknown kind %d", wf.Tag, wf.Kind)
		}
	}
	return nil
}

// Encode serializes the message for transport. Tags are written in ascending
// order, so identical messages encode to identical bytes.
func Encode(m *Message) ([]byte, error) {
	frame := wireMessage{
		Header: packFields(m.header),
		Body:   packFields(m.body),
	}
	data, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Decode deserializes a transport frame back into a message.
func Decode(data []byte) (*Message, error) {
	var frame wireMessage
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	m := &Message{header: newFields(), body: newFields()}
	if err := unpackFields(m.header, frame.Header); err != nil {
		return nil, err
	}
	if err := unpackFields(m.body, frame.Body); err != nil {
		return nil, err
	}
	return m, nil
}
