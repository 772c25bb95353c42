package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

type testOptions struct {
	HTTP      *options.HttpOptions      `mapstructure:"http"`
	Messaging *options.MessagingOptions `mapstructure:"messaging"`
	Log       *log.Options              `mapstructure:"log"`

	completed bool
}

func newTestOptions() *testOptions {
	return &testOptions{
		HTTP:      options.NewHttpOptions(),
		Messaging: options.NewMessagingOptions(),
		Log:       log.NewOptions(),
	}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HTTP.AddFlags(fss.FlagSet("http"))
	o.Messaging.AddFlags(fss.FlagSet("messaging"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if errs := o.HTTP.Validate(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func TestAppLoadsFlagsEnvAndConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("http:\n  addr: 127.0.0.1:9100\nmessaging:\n  dedupe-ttl: 3m\n"), 0o600))
	t.Setenv("SPEER_MESSAGING_BACKEND", "redis")

	opts := newTestOptions()
	ran := false
	a := NewApp("test", "test app",
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithRunFunc(func() error { ran = true; return nil }),
	)
	a.Command().SetArgs([]string{"--config", cfg, "--http.timeout", "5s", "--log.level", "debug"})
	require.NoError(t, a.Command().Execute())

	require.True(t, ran)
	require.True(t, opts.completed)
	require.Equal(t, "127.0.0.1:9100", opts.HTTP.Addr)
	require.Equal(t, 5*time.Second, opts.HTTP.Timeout)
	require.Equal(t, 3*time.Minute, opts.Messaging.DedupeTTL)
	require.Equal(t, options.BackendRedis, opts.Messaging.Backend)
	require.Equal(t, "debug", log.Level())
}

func TestAppLogOptionsFromEverySource(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  name: from-file\n"), 0o600))
	t.Setenv("SPEER_LOG_FORMAT", "json")

	a := NewApp("test", "test app", WithOptions(newTestOptions()), WithRunFunc(func() error { return nil }))
	a.Command().SetArgs([]string{"--config", cfg, "--log.level", "warn", "--log.disable-caller"})
	require.NoError(t, a.Command().Execute())

	got := a.logOptions()
	require.Equal(t, "warn", got.Level)
	require.Equal(t, "json", got.Format)
	require.Equal(t, "from-file", got.Name)
	require.True(t, got.DisableCaller)
	require.Equal(t, log.NewOptions().OutputPaths, got.OutputPaths)
	require.Equal(t, "warn", log.Level())
}

func TestAppRejectsInvalidOptions(t *testing.T) {
	opts := newTestOptions()
	a := NewApp("test", "test app", WithOptions(opts), WithRunFunc(func() error {
		return errors.New("must not run")
	}))
	a.Command().SetArgs([]string{"--http.addr", "nohost"})
	a.Command().SetErr(new(discard))
	require.Error(t, a.Command().Execute())
}

func TestAppRejectsPositionalArgs(t *testing.T) {
	a := NewApp("test", "test app", WithOptions(newTestOptions()), WithDefaultValidArgs(), WithRunFunc(func() error { return nil }))
	a.Command().SetArgs([]string{"extra"})
	a.Command().SetErr(new(discard))
	require.Error(t, a.Command().Execute())
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
