package kmsplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestGroupsPerObject(t *testing.T) {
	req := NewRequest()
	require.True(t, req.Empty())

	assert.True(t, req.Set(10, 1, 100))
	assert.True(t, req.Set(20, 2, 200))
	assert.True(t, req.Set(10, 3, 300))
	assert.True(t, req.Set(30, 4, 400))
	require.False(t, req.Empty())

	objs, counts, props, values := req.flatten()
	assert.Equal(t, []uint32{10, 20, 30}, objs)
	assert.Equal(t, []uint32{2, 1, 1}, counts)
	assert.Equal(t, []uint32{1, 3, 2, 4}, props)
	assert.Equal(t, []uint64{100, 300, 200, 400}, values)
}

func TestRequestSkipsAbsentProperties(t *testing.T) {
	req := NewRequest()
	assert.False(t, req.Set(10, 0, 100))
	assert.True(t, req.Empty())

	objs, counts, props, values := req.flatten()
	assert.Empty(t, objs)
	assert.Empty(t, counts)
	assert.Empty(t, props)
	assert.Empty(t, values)
}

func TestRequestKeepsStagingOrder(t *testing.T) {
	req := NewRequest()
	for id := uint32(1); id <= 5; id++ {
		req.Set(100-id, 1, uint64(id))
	}
	objs, _, _, _ := req.flatten()
	assert.Equal(t, []uint32{99, 98, 97, 96, 95}, objs)
}
