package clock

import (
	"context"
	"time"

	"github.com/beevik/ntp"
)

// NTPSource queries a single NTP server.
type NTPSource struct {
	server  string
	timeout time.Duration
}

var _ Source = (*NTPSource)(nil)

func NewNTPSource(server string, timeout time.Duration) *NTPSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NTPSource{server: server, timeout: timeout}
}

func (n *NTPSource) Name() string { return n.server }

func (n *NTPSource) Offset(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	timeout := n.timeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = remaining
		}
	}

	resp, err := ntp.QueryWithOptions(n.server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}
