package activity_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.jacobcolvin.com/gpuprof/activity"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	c := activity.NewConfig()

	// All output paths should be empty (disabled).
	assert.Empty(t, c.CPUProfile)
	assert.Empty(t, c.HeapProfile)
	assert.Empty(t, c.AllocsProfile)
	assert.Empty(t, c.GoroutineProfile)
	assert.Empty(t, c.BlockProfile)
	assert.Empty(t, c.MutexProfile)
	assert.False(t, c.Enabled())

	// Rate fields should be zero.
	assert.Zero(t, c.MemProfileRate)
	assert.Zero(t, c.BlockProfileRate)
	assert.Zero(t, c.MutexProfileFraction)
}

func TestConfigEnabled(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		cfg  activity.Config
		want bool
	}{
		"empty": {
			cfg:  activity.Config{},
			want: false,
		},
		"rates only": {
			cfg:  activity.Config{MemProfileRate: 1024},
			want: false,
		},
		"cpu": {
			cfg:  activity.Config{CPUProfile: "cpu.prof"},
			want: true,
		},
		"snapshot": {
			cfg:  activity.Config{GoroutineProfile: "goroutine.prof"},
			want: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, tc.cfg.Enabled())
		})
	}
}

func TestConfig_RegisterFlags_Parsing(t *testing.T) {
	t.Parallel()

	c := activity.NewConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)

	c.RegisterFlags(flags)

	err := flags.Parse([]string{
		"--activity-cpu-profile=cpu.prof",
		"--activity-heap-profile=heap.prof",
		"--activity-allocs-profile=allocs.prof",
		"--activity-goroutine-profile=goroutine.prof",
		"--activity-block-profile=block.prof",
		"--activity-mutex-profile=mutex.prof",
		"--activity-mem-profile-rate=1024",
		"--activity-block-profile-rate=100",
		"--activity-mutex-profile-fraction=10",
	})
	require.NoError(t, err)

	assert.Equal(t, "cpu.prof", c.CPUProfile)
	assert.Equal(t, "heap.prof", c.HeapProfile)
	assert.Equal(t, "allocs.prof", c.AllocsProfile)
	assert.Equal(t, "goroutine.prof", c.GoroutineProfile)
	assert.Equal(t, "block.prof", c.BlockProfile)
	assert.Equal(t, "mutex.prof", c.MutexProfile)

	assert.Equal(t, 1024, c.MemProfileRate)
	assert.Equal(t, 100, c.BlockProfileRate)
	assert.Equal(t, 10, c.MutexProfileFraction)
}

func TestConfig_RegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	c := activity.NewConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)

	c.RegisterFlags(flags)

	err := flags.Parse([]string{})
	require.NoError(t, err)

	// Zero rates leave the host process's settings alone.
	assert.Zero(t, c.MemProfileRate)
	assert.Zero(t, c.BlockProfileRate)
	assert.Zero(t, c.MutexProfileFraction)
}

func TestRegisterCompletions(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		flag string
	}{
		"mem-profile-rate completions": {
			flag: "activity-mem-profile-rate",
		},
		"block-profile-rate completions": {
			flag: "activity-block-profile-rate",
		},
		"mutex-profile-fraction completions": {
			flag: "activity-mutex-profile-fraction",
		},
	}

	cfg := activity.NewConfig()

	cmd := &cobra.Command{Use: "test"}
	cfg.RegisterFlags(cmd.Flags())

	err := cfg.RegisterCompletions(cmd)
	require.NoError(t, err)

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			completionFn, ok := cmd.GetFlagCompletionFunc(tc.flag)
			require.True(t, ok)

			values, directive := completionFn(cmd, nil, "")
			assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
			assert.Nil(t, values)
		})
	}
}
