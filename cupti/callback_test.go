package cupti_test

import (
	"sync"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nvmlmock "github.com/NVIDIA/go-nvml/pkg/nvml/mock"

	"go.jacobcolvin.com/gpuprof/cupti"
)

func newLib(ret nvml.Return, calls *int) *nvmlmock.Interface {
	return &nvmlmock.Interface{
		InitFunc: func() nvml.Return {
			if calls != nil {
				*calls++
			}

			return ret
		},
		ShutdownFunc: func() nvml.Return {
			return nvml.SUCCESS
		},
	}
}

func TestInitSuccess(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		ret  nvml.Return
		want bool
	}{
		"library present": {
			ret:  nvml.SUCCESS,
			want: true,
		},
		"library absent": {
			ret:  nvml.ERROR_LIBRARY_NOT_FOUND,
			want: false,
		},
		"driver not loaded": {
			ret:  nvml.ERROR_DRIVER_NOT_LOADED,
			want: false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			numCalls := 0
			api := cupti.NewCallbackAPI(cupti.WithLibrary(newLib(tc.ret, &numCalls)))

			assert.Equal(t, tc.want, api.InitSuccess())
			assert.Equal(t, tc.want, api.InitSuccess())
			assert.Equal(t, 1, numCalls, "backend is probed once")

			if tc.want {
				require.NoError(t, api.LastError())
			} else {
				require.ErrorIs(t, api.LastError(), cupti.ErrBackendUnavailable)
				require.ErrorIs(t, api.LastError(), tc.ret)
			}
		})
	}
}

func TestRegisterCallback(t *testing.T) {
	t.Parallel()

	noop := func(cupti.Domain, cupti.CallbackID, *cupti.ResourceData) {}

	tcs := map[string]struct {
		wantErr error
		cb      cupti.Callback
		ret     nvml.Return
		domain  cupti.Domain
		id      cupti.CallbackID
		want    bool
	}{
		"context created": {
			ret:    nvml.SUCCESS,
			domain: cupti.DomainResource,
			id:     cupti.ResourceContextCreated,
			cb:     noop,
			want:   true,
		},
		"context destroyed": {
			ret:    nvml.SUCCESS,
			domain: cupti.DomainResource,
			id:     cupti.ResourceContextDestroyed,
			cb:     noop,
			want:   true,
		},
		"backend unavailable": {
			ret:     nvml.ERROR_LIBRARY_NOT_FOUND,
			domain:  cupti.DomainResource,
			id:      cupti.ResourceContextCreated,
			cb:      noop,
			wantErr: cupti.ErrBackendUnavailable,
		},
		"wrong domain": {
			ret:     nvml.SUCCESS,
			domain:  cupti.DomainRuntimeAPI,
			id:      cupti.ResourceContextCreated,
			cb:      noop,
			wantErr: cupti.ErrUnsupportedCallback,
		},
		"unknown callback": {
			ret:     nvml.SUCCESS,
			domain:  cupti.DomainResource,
			id:      cupti.CallbackID(99),
			cb:      noop,
			wantErr: cupti.ErrUnsupportedCallback,
		},
		"nil callback": {
			ret:     nvml.SUCCESS,
			domain:  cupti.DomainResource,
			id:      cupti.ResourceContextCreated,
			wantErr: cupti.ErrNilCallback,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			api := cupti.NewCallbackAPI(cupti.WithLibrary(newLib(tc.ret, nil)))

			got := api.RegisterCallback(tc.domain, tc.id, tc.cb)
			assert.Equal(t, tc.want, got)

			if tc.wantErr != nil {
				require.ErrorIs(t, api.LastError(), tc.wantErr)
			} else {
				require.NoError(t, api.LastError())
			}
		})
	}
}

func TestEnableCallbackRequiresRegistration(t *testing.T) {
	t.Parallel()

	api := cupti.NewCallbackAPI(cupti.WithLibrary(newLib(nvml.SUCCESS, nil)))

	assert.False(t, api.EnableCallback(cupti.DomainResource, cupti.ResourceContextCreated))
	require.ErrorIs(t, api.LastError(), cupti.ErrCallbackNotRegistered)

	assert.False(t, api.DisableCallback(cupti.DomainResource, cupti.ResourceContextCreated))
	require.ErrorIs(t, api.LastError(), cupti.ErrCallbackNotRegistered)
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	api := cupti.NewCallbackAPI(cupti.WithLibrary(newLib(nvml.SUCCESS, nil)))

	var (
		mu  sync.Mutex
		got []string
	)

	record := func(tag string) cupti.Callback {
		return func(_ cupti.Domain, id cupti.CallbackID, data *cupti.ResourceData) {
			mu.Lock()
			defer mu.Unlock()

			got = append(got, tag+":"+id.String())
			assert.Equal(t, cupti.Context(0xbeef), data.Context)
		}
	}

	require.True(t, api.RegisterCallback(cupti.DomainResource, cupti.ResourceContextCreated, record("first")))
	require.True(t, api.RegisterCallback(cupti.DomainResource, cupti.ResourceContextCreated, record("second")))
	require.True(t, api.RegisterCallback(cupti.DomainResource, cupti.ResourceContextDestroyed, record("first")))

	data := &cupti.ResourceData{Context: 0xbeef}

	// Registered but not enabled.
	api.Dispatch(cupti.DomainResource, cupti.ResourceContextCreated, data)
	assert.Empty(t, got)

	require.True(t, api.EnableCallback(cupti.DomainResource, cupti.ResourceContextCreated))
	api.Dispatch(cupti.DomainResource, cupti.ResourceContextCreated, data)
	api.Dispatch(cupti.DomainResource, cupti.ResourceContextDestroyed, data)
	assert.Equal(t, []string{"first:context_created", "second:context_created"}, got)

	require.True(t, api.DisableCallback(cupti.DomainResource, cupti.ResourceContextCreated))
	api.Dispatch(cupti.DomainResource, cupti.ResourceContextCreated, data)
	assert.Len(t, got, 2)

	require.True(t, api.EnableCallback(cupti.DomainResource, cupti.ResourceContextDestroyed))
	api.DispatchRaw(cupti.DomainResource, 2, 0xbeef)
	assert.Equal(t, "first:context_destroyed", got[len(got)-1])

	require.True(t, api.DeleteCallbacks(cupti.DomainResource, cupti.ResourceContextDestroyed))
	api.DispatchRaw(cupti.DomainResource, 2, 0xbeef)
	assert.Len(t, got, 3)
	assert.False(t, api.DeleteCallbacks(cupti.DomainResource, cupti.ResourceContextDestroyed))
}

func TestDispatchRecoversPanics(t *testing.T) {
	t.Parallel()

	api := cupti.NewCallbackAPI(cupti.WithLibrary(newLib(nvml.SUCCESS, nil)))

	ran := false

	require.True(t, api.RegisterCallback(cupti.DomainResource, cupti.ResourceContextCreated,
		func(cupti.Domain, cupti.CallbackID, *cupti.ResourceData) {
			panic("collaborator failure")
		}))
	require.True(t, api.RegisterCallback(cupti.DomainResource, cupti.ResourceContextCreated,
		func(cupti.Domain, cupti.CallbackID, *cupti.ResourceData) {
			ran = true
		}))
	require.True(t, api.EnableCallback(cupti.DomainResource, cupti.ResourceContextCreated))

	assert.NotPanics(t, func() {
		api.DispatchRaw(cupti.DomainResource, 1, 0x1)
	})
	assert.True(t, ran)
}

func TestDispatchRawIgnoresUnknownEvents(t *testing.T) {
	t.Parallel()

	api := cupti.NewCallbackAPI(cupti.WithLibrary(newLib(nvml.SUCCESS, nil)))

	called := false

	require.True(t, api.RegisterCallback(cupti.DomainResource, cupti.ResourceContextCreated,
		func(cupti.Domain, cupti.CallbackID, *cupti.ResourceData) {
			called = true
		}))
	require.True(t, api.EnableCallback(cupti.DomainResource, cupti.ResourceContextCreated))

	api.DispatchRaw(cupti.DomainResource, 7, 0x1)
	api.DispatchRaw(cupti.DomainDriverAPI, 1, 0x1)
	assert.False(t, called)
}

func TestClose(t *testing.T) {
	t.Parallel()

	shutdowns := 0
	lib := newLib(nvml.SUCCESS, nil)
	lib.ShutdownFunc = func() nvml.Return {
		shutdowns++
		return nvml.SUCCESS
	}

	api := cupti.NewCallbackAPI(cupti.WithLibrary(lib))
	require.NoError(t, api.Close(), "closing before init is a no-op")
	assert.Zero(t, shutdowns)

	require.True(t, api.InitSuccess())
	require.NoError(t, api.Close())
	require.NoError(t, api.Close())
	assert.Equal(t, 1, shutdowns)
}

func TestCallbackIDFromRaw(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		domain cupti.Domain
		raw    uint32
		want   cupti.CallbackID
		ok     bool
	}{
		"context created": {
			domain: cupti.DomainResource,
			raw:    1,
			want:   cupti.ResourceContextCreated,
			ok:     true,
		},
		"context destroy starting": {
			domain: cupti.DomainResource,
			raw:    2,
			want:   cupti.ResourceContextDestroyed,
			ok:     true,
		},
		"stream created": {
			domain: cupti.DomainResource,
			raw:    3,
		},
		"other domain": {
			domain: cupti.DomainRuntimeAPI,
			raw:    1,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, ok := cupti.CallbackIDFromRaw(tc.domain, tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
