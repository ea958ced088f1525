package health

import "context"

// StorePinger checks recording store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// UpstreamChecker checks the Clarity server a recorder proxies to.
type UpstreamChecker interface {
	HealthCheck(ctx context.Context) error
}
