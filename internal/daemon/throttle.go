package daemon

import (
	"net"
	"net/http"
	"strconv"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// callThrottle limits /request calls per remote host.
type callThrottle struct {
	limiter *catrate.Limiter
	now     func() time.Time
}

func newCallThrottle(perSecond int) *callThrottle {
	if perSecond <= 0 {
		return nil
	}
	return &callThrottle{
		limiter: catrate.NewLimiter(map[time.Duration]int{time.Second: perSecond}),
		now:     time.Now,
	}
}

// allow registers a call for r's host. When the budget is spent it returns
// false and how long the caller should wait.
func (t *callThrottle) allow(r *http.Request) (time.Duration, bool) {
	if t == nil {
		return 0, true
	}
	next, ok := t.limiter.Allow(remoteHost(r))
	if ok {
		return 0, true
	}
	wait := next.Sub(t.now())
	if wait < 0 {
		wait = 0
	}
	return wait, false
}

func retryAfterSeconds(wait time.Duration) string {
	secs := int((wait + time.Second - 1) / time.Second)
	return strconv.Itoa(max(secs, 1))
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
