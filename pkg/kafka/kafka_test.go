package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batch struct {
	Group string `json:"group"`
	Size  int    `json:"size"`
}

func TestEncodeKeepsOrderAndKeys(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "ds", Value: batch{Group: "A", Size: 10}},
		{Key: "ds", Value: batch{Group: "B", Size: 20}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("ds"), msgs[0].Key)
	assert.JSONEq(t, `{"group":"A","size":10}`, string(msgs[0].Value))

	decoded, err := DecodeJSON[batch](msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, batch{Group: "B", Size: 20}, decoded)
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode([]Event{{Key: "x", Value: make(chan int)}})
	require.Error(t, err)
}

func TestDecodeJSONError(t *testing.T) {
	_, err := DecodeJSON[batch]([]byte("{"))
	require.Error(t, err)
}
