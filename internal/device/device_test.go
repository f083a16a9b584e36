package device

import (
	"testing"

	"github.com/born-ml/nfnet/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	cases := []struct {
		requested config.Device
		webgpu    bool
		want      config.Device
	}{
		{config.DeviceAuto, true, config.DeviceWebGPU},
		{config.DeviceAuto, false, config.DeviceCPU},
		{config.DeviceCPU, true, config.DeviceCPU},
		{config.DeviceWebGPU, true, config.DeviceWebGPU},
	}
	for _, tc := range cases {
		got, err := Select(tc.requested, tc.webgpu)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "requested %s, webgpu=%v", tc.requested, tc.webgpu)
	}
}

func TestSelectUnavailable(t *testing.T) {
	_, err := Select(config.DeviceWebGPU, false)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = Select("tpu", true)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDescribe(t *testing.T) {
	h := Describe()
	assert.NotEmpty(t, h.Brand)
	assert.GreaterOrEqual(t, h.LogicalCores, 0)
	assert.Contains(t, h.String(), h.Brand)
}
