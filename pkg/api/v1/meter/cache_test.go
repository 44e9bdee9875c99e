package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheFresh(t *testing.T) {
	c := &Cache{}
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	_, ok := c.Fresh(now, time.Minute)
	assert.False(t, ok)

	c.Set(&Data{Id: "1", Current_W: 2000, Time: now.Add(-30 * time.Second)})
	d, ok := c.Fresh(now, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 2000.0, d.Current_W)

	_, ok = c.Fresh(now.Add(time.Minute), time.Minute)
	assert.False(t, ok)
}
