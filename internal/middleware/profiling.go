package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// pprofPrefix is where the runtime profiler is mounted.
const pprofPrefix = "/debug/pprof"

// Pprof exposes the Go runtime profiler under /debug/pprof. Profiles leak
// heap contents and build details, so the middleware stays inert unless
// enabled is set, and refuses to arm itself in a production environment
// regardless of the flag.
func Pprof(enabled bool, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		if env == "production" || env == "prod" {
			slog.Error("refusing to enable pprof in production", "env", env)
			return next
		}

		profiler := http.NewServeMux()
		profiler.HandleFunc(pprofPrefix+"/", pprof.Index)
		profiler.HandleFunc(pprofPrefix+"/cmdline", pprof.Cmdline)
		profiler.HandleFunc(pprofPrefix+"/profile", pprof.Profile)
		profiler.HandleFunc(pprofPrefix+"/symbol", pprof.Symbol)
		profiler.HandleFunc(pprofPrefix+"/trace", pprof.Trace)

		slog.Warn("pprof endpoints enabled", "env", env, "prefix", pprofPrefix)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, pprofPrefix) {
				profiler.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
