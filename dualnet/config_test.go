package dual

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfIsValid(t *testing.T) {
	conf := DefaultConf(10, 10, 4672)
	assert.True(t, conf.IsValid())
}

func TestInvalidConfRejected(t *testing.T) {
	conf := Config{K: 0, SharedLayers: 1, FC: 10, BatchSize: 1, Width: 8, Height: 8, Features: 21, ActionSpace: 4672}
	assert.False(t, conf.IsValid())
}
