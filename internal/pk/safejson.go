package pk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"time"
)

// kv is a single ordered key/value pair; orderedMap preserves the
// insertion order spec.md §4.2 requires when serializing a composite key
// (encoding/json's map support would sort keys alphabetically instead).
type kv struct {
	key   string
	value any
}

type orderedMap []kv

// visited tracks object identities already on the current encode path, so
// cycles can be reported as the literal "[Circular]" instead of recursing
// forever.
type visited map[uintptr]bool

// encodeSafe serializes m deterministically: big integers as decimal
// strings, time.Time as RFC3339, and any object already seen earlier on
// the same path as the literal "[Circular]".
func encodeSafe(m orderedMap) (string, error) {
	var buf bytes.Buffer
	if err := encodeOrderedMap(&buf, m, visited{}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func encodeOrderedMap(buf *bytes.Buffer, m orderedMap, seen visited) error {
	buf.WriteByte('{')
	for i, pair := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(pair.key)
		if err != nil {
			return err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		if err := encodeValue(buf, pair.value, seen); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeValue(buf *bytes.Buffer, v any, seen visited) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case *big.Int:
		return writeJSONString(buf, val.String())
	case time.Time:
		return writeJSONString(buf, val.UTC().Format(time.RFC3339Nano))
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr:
		if rv.Kind() != reflect.Ptr || !rv.IsNil() {
			ptr := rv.Pointer()
			if seen[ptr] {
				return writeJSONString(buf, "[Circular]")
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
	}

	switch rv.Kind() {
	case reflect.Map:
		buf.WriteByte('{')
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(fmt.Sprint(k.Interface()))
			if err != nil {
				return err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := encodeValue(buf, rv.MapIndex(k).Interface(), seen); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case reflect.Slice, reflect.Array:
		buf.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, rv.Index(i).Interface(), seen); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case reflect.Ptr:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return encodeValue(buf, rv.Elem().Interface(), seen)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
