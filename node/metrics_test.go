package node

import (
	"testing"
	"time"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/core/state"
	"github.com/NethermindEth/katana-go/mocks"
	"github.com/NethermindEth/katana-go/vm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func useRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	originalRegisterer := prometheus.DefaultRegisterer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = originalRegisterer
	})
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	return reg
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			require.Len(t, family.GetMetric(), 1, "expected 1 metric value")
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	require.FailNow(t, "metric not found", name)
	return 0
}

func TestMessagingMetrics(t *testing.T) {
	reg := useRegistry(t)

	listener := makeMessagingMetrics()
	listener.OnMessage()
	listener.OnMessage()
	listener.OnPollFailed()

	count, err := testutil.GatherAndCount(reg, "messaging_messages", "messaging_poll_failures")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	expected := map[string]float64{"messaging_messages": 2, "messaging_poll_failures": 1}
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		assert.Equal(t, expected[family.GetName()], family.GetMetric()[0].GetCounter().GetValue(), family.GetName())
	}
}

func TestDBMetrics(t *testing.T) {
	reg := useRegistry(t)

	listener := makeDBMetrics()
	listener.OnIO(false, 0.000_050)
	listener.OnIO(true, 0.000_100)
	listener.OnIO(true, 0.000_200)
	listener.OnCommit(0.01)

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := make(map[string]uint64)
	for _, family := range families {
		counts[family.GetName()] = family.GetMetric()[0].GetHistogram().GetSampleCount()
	}
	assert.Equal(t, map[string]uint64{
		"db_read_latency":   1,
		"db_write_latency":  2,
		"db_commit_latency": 1,
	}, counts)
}

func TestVMThrottlerMetrics(t *testing.T) {
	reg := useRegistry(t)

	ctrl := gomock.NewController(t)
	mockVM := mocks.NewMockVM(ctrl)
	throttledVM := NewThrottledVM(mockVM, 1, 0)
	makeVMThrottlerMetrics(throttledVM)

	release := make(chan struct{})
	done := make(chan struct{})
	mockVM.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any(), uint64(10)).
		DoAndReturn(func(*vm.CallInfo, *core.BlockEnv, state.Reader, uint64) ([]felt.Felt, error) {
			<-release
			return []felt.Felt{*felt.New(1)}, nil
		})
	go func() {
		defer close(done)
		_, _ = throttledVM.Call(&vm.CallInfo{}, &core.BlockEnv{}, nil, 10)
	}()

	require.Eventually(t, func() bool {
		return gaugeValue(t, reg, "vm_jobs") == 1
	}, 5*time.Second, time.Millisecond)
	close(release)
	<-done
	assert.Equal(t, float64(0), gaugeValue(t, reg, "vm_jobs"))
	assert.Equal(t, float64(0), gaugeValue(t, reg, "vm_queue"))
}

func TestBlockchainMetrics(t *testing.T) {
	reg := useRegistry(t)

	listener := makeBlockchainMetrics()
	listener.OnRead("Head")
	listener.OnStored(7, 3*time.Millisecond)

	assert.Equal(t, float64(7), gaugeValue(t, reg, "blockchain_head"))
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		switch family.GetName() {
		case "blockchain_reads":
			assert.Equal(t, float64(1), family.GetMetric()[0].GetCounter().GetValue())
		case "blockchain_store_latency":
			assert.Equal(t, uint64(1), family.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
}
