// Package throttle provides an [http.RoundTripper] that rate-limits
// outbound task requests using a token bucket from [golang.org/x/time/rate].
//
// Wrap an existing transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		throttle.Config{RPS: 10, Burst: 5},
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//
// When the rate limit is exceeded, requests block until a token becomes
// available or the request context ends.
package throttle
