package store

import (
	"fmt"

	"github.com/roach88/tinkergo/internal/ir"
)

// marshalValue converts a value to canonical JSON TEXT for storage.
func marshalValue(v ir.IRValue) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// marshalProps stores a nil property map as an empty object.
func marshalProps(props ir.IRObject) (string, error) {
	if props == nil {
		props = ir.IRObject{}
	}
	return marshalValue(props)
}

func unmarshalValue(s string) (ir.IRValue, error) {
	v, err := ir.UnmarshalIRValue([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

func unmarshalProps(s string) (ir.IRObject, error) {
	v, err := unmarshalValue(s)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("unmarshal properties: expected object, got %T", v)
	}
	return obj, nil
}
