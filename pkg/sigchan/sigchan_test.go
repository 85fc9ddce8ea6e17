package sigchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitCoalesces(t *testing.T) {
	c := New(1)
	c.Emit()
	c.Emit()
	c.Emit()

	select {
	case <-c.C():
	default:
		t.Fatal("expected a pending signal")
	}
	assert.Equal(t, 0, c.Drain())
}

func TestDrain(t *testing.T) {
	c := New(3)
	c.Emit()
	c.Emit()
	assert.Equal(t, 2, c.Drain())
	assert.Equal(t, 0, c.Drain())
}
