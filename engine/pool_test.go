package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultPoolReset(t *testing.T) {
	p := newResultPool(2, true)

	r := p.acquire()
	r.Name = "x"
	r.Successful = true
	r.Data = 42
	r.Metadata = map[string]string{"k": "v"}
	p.release(r)

	r2 := p.acquire()
	assert.Same(t, r, r2)
	assert.Empty(t, r2.Name)
	assert.False(t, r2.Successful)
	assert.Nil(t, r2.Data)
	assert.Nil(t, r2.Metadata)
}

func TestResultPoolOverflowDiscarded(t *testing.T) {
	p := newResultPool(1, true)
	a, b := p.acquire(), p.acquire()
	p.release(a)
	p.release(b) // over capacity, dropped
	assert.Len(t, p.ch, 1)
}

func TestResultPoolDisabled(t *testing.T) {
	p := newResultPool(1, false)
	r := p.acquire()
	r.Name = "x"
	p.release(r)
	assert.NotSame(t, r, p.acquire())
	assert.Len(t, p.ch, 0)
}

func TestResultClone(t *testing.T) {
	r := &TaskResult{Name: "a", Metadata: map[string]string{"k": "v"}}
	c := r.clone()
	r.Metadata["k"] = "changed"
	assert.Equal(t, "v", c.Metadata["k"])
}
