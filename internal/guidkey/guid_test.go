package guidkey_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triton-marine/umaa-assembly/internal/guidkey"
)

func TestHashableGUID_NilSentinel(t *testing.T) {
	assert.True(t, guidkey.NilGUID.IsNil())
	assert.False(t, guidkey.New().IsNil())
}

func TestKey_CrossWrapperEquality(t *testing.T) {
	u := uuid.New()
	h := guidkey.HashableGUID(u)

	assert.Equal(t, h, guidkey.Key(u))
	assert.Equal(t, h, guidkey.Key(h))
	assert.Equal(t, h, guidkey.Key([16]byte(u)))
	assert.Equal(t, h, guidkey.Key(u[:]))
	assert.True(t, guidkey.Equal(u, h))
}

func TestKey_NilInput(t *testing.T) {
	assert.Equal(t, guidkey.NilGUID, guidkey.Key(nil))
	var ptr *uuid.UUID
	assert.Equal(t, guidkey.NilGUID, guidkey.Key(ptr))
}

func TestGetSetAtPath(t *testing.T) {
	type Inner struct {
		Speed float64
	}
	type Outer struct {
		Objective Inner
	}

	o := &Outer{Objective: Inner{Speed: 1.5}}
	v, err := guidkey.GetAtPath(o, guidkey.AttributePath{"Objective", "Speed"})
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	require.NoError(t, guidkey.SetAtPath(o, guidkey.AttributePath{"Objective", "Speed"}, 3.5))
	assert.Equal(t, 3.5, o.Objective.Speed)

	_, err = guidkey.GetAtPath(o, guidkey.AttributePath{"Missing"})
	assert.Error(t, err)
}

func TestPathForSetElement(t *testing.T) {
	id := guidkey.New()
	p := guidkey.PathForSetElement("waypoints", id)
	require.Len(t, p, 1)
	assert.Contains(t, p[0], "waypoints")
	assert.Contains(t, p[0], id.String())
}

func TestAttributePathJoin(t *testing.T) {
	base := guidkey.AttributePath{"objective"}
	elem := guidkey.PathForListElement("waypoints", guidkey.New())
	joined := elem.Join(base)
	require.Len(t, joined, 2)
	assert.Equal(t, "objective", joined[1])
}
