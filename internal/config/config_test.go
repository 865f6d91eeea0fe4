package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledstream/pixel"
	"github.com/coreman2200/ledstream/ring"
	"github.com/coreman2200/ledstream/transmit"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 60, c.Count())
	assert.Equal(t, time.Second/60, c.FrameBudget())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: spi
matrix:
  width: 8
  height: 4
  serpentine: true
color_order: rgbw
stream:
  capacity: 2
  policy: evict-oldest
spi:
  encoding: nrz4
  speed_hz: 3200000
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "spi", c.Driver)
	assert.Equal(t, 32, c.Count())
	assert.Equal(t, 60, c.FPS, "untouched fields keep defaults")

	sc := c.StreamConfig()
	assert.Equal(t, 32, sc.LEDCount)
	assert.Equal(t, 2, sc.Capacity)
	assert.Equal(t, ring.EvictOldest, sc.Policy)
	assert.Equal(t, 4, sc.Order.Channels())

	so := c.SPIOpts()
	assert.Equal(t, transmit.NRZ4, so.Encoding)
	assert.Equal(t, 3200*physic.KiloHertz, so.Speed)
	assert.Equal(t, 300*time.Microsecond, so.Latch)
	assert.Equal(t, 4, so.Channels)
}

func TestLoadOverKeepsBaseFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps: 30\n"), 0644))

	base := Default()
	base.Driver = "console"
	base.LEDCount = 144
	c, err := LoadOver(path, base)
	require.NoError(t, err)
	assert.Equal(t, 30, c.FPS)
	assert.Equal(t, "console", c.Driver)
	assert.Equal(t, 144, c.Count())
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"order":    "color_order: XYZ\n",
		"policy":   "stream: {policy: overwrite}\n",
		"capacity": "stream: {capacity: 0}\n",
		"count":    "led_count: 0\n",
		"encoding": "spi: {encoding: pwm}\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := Default()
	c.Power.MaxMW = 2500
	c.ColorOrder = "BRG"
	require.NoError(t, Save(path, &c))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, *got)
	assert.Equal(t, "BRG", got.Order().String())
	assert.Equal(t, pixel.GRB, (&Config{ColorOrder: "??"}).Order())
}
