// Package log provides structured logging handler construction for use with
// [log/slog], and the logger shared by every gpuprof package.
//
// It supports multiple output formats ([FormatJSON], [FormatLogfmt], and
// [FormatText]) and severity levels ([LevelError], [LevelWarn], [LevelInfo],
// and [LevelDebug]). Use [NewHandler] to create a handler directly, or use
// [Config] with CLI flag integration via [github.com/spf13/pflag] and shell
// completion support via [github.com/spf13/cobra].
//
// Typical usage in an embedding application:
//
//	cfg := log.NewConfig()
//	cfg.RegisterFlags(rootCmd.PersistentFlags())
//	cfg.RegisterCompletions(rootCmd)
//
//	handler, err := cfg.NewHandler(os.Stderr)
//	log.SetLogger(slog.New(handler))
//
// gpuprof packages log through [Logger]. It discards everything until
// [SetLogger] is called. [Suppress] raises the minimum severity to errors
// without replacing the handler:
//
//	log.Suppress()
//	log.Logger().Warn("dropped")
//	log.Logger().Error("kept")
package log
