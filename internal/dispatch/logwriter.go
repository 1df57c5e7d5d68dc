package dispatch

import "log/slog"

// slogWriter adapts a *slog.Logger to the io.Writer gorilla/handlers'
// LoggingHandler expects, so every request line lands in the same
// structured log stream as everything else the Bridge logs.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.log.Info(string(p))
	return len(p), nil
}
