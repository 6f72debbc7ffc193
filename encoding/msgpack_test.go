package encoding

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID      uint64
	Name    string
	Ack     bool
	Payload string
}

func TestMarshal_Basic(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"string", "hello world"},
		{"int64", int64(9876543210)},
		{"bool", true},
		{"slice", []int{1, 2, 3}},
		{"map", map[uint64]string{1: "a", 2: "b"}},
		{"struct", sample{ID: 7, Name: "n"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.input)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}
}

func TestUnmarshal_StructFields(t *testing.T) {
	in := sample{ID: 1 << 63, Name: "doc.txt", Ack: true, Payload: "hello\nworld"}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshal_InterfaceKeepsStrings(t *testing.T) {
	data, err := Marshal(map[string]interface{}{"content": "text"})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, Unmarshal(data, &out))
	_, isString := out["content"].(string)
	assert.True(t, isString)
}

func TestCodec_Name(t *testing.T) {
	assert.Equal(t, "msgpack", Codec{}.Name())
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				data, err := Codec{}.Marshal(sample{ID: uint64(n), Name: "x"})
				if err != nil {
					t.Errorf("Marshal failed: %v", err)
					return
				}
				var out sample
				if err := (Codec{}).Unmarshal(data, &out); err != nil || out.ID != uint64(n) {
					t.Errorf("round trip failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
