package grpc

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultRequestTimeout = 10 * time.Second

// TimeoutInterceptor bounds requests that arrive without a deadline.
func TimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// businessScoped is implemented by requests that count as booking attempts.
type businessScoped interface {
	businessKey() string
}

func (r *BookRequest) businessKey() string          { return r.BusinessID }
func (r *BookRecurringRequest) businessKey() string { return r.BusinessID }
func (r *RescheduleRequest) businessKey() string    { return r.BusinessID }

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BookingLimiter caps booking attempts per business with a token bucket that
// refills perHour tokens an hour.
type BookingLimiter struct {
	mu        sync.Mutex
	perHour   int
	limiters  map[string]*limiterEntry
	lastPrune time.Time
	now       func() time.Time
}

func NewBookingLimiter(perHour int) *BookingLimiter {
	return &BookingLimiter{
		perHour:  perHour,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow reports whether businessID may make another booking attempt now.
func (l *BookingLimiter) Allow(businessID string) bool {
	if l == nil || l.perHour <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	e, ok := l.limiters[businessID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHour)), l.perHour)}
		l.limiters[businessID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// prune drops buckets idle long enough to have refilled completely.
func (l *BookingLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < time.Hour {
		return
	}
	l.lastPrune = now
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) >= time.Hour {
			delete(l.limiters, key)
		}
	}
}

func (l *BookingLimiter) Interceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		scoped, ok := req.(businessScoped)
		if !ok {
			return handler(ctx, req)
		}
		if !l.Allow(scoped.businessKey()) {
			return nil, status.Error(codes.ResourceExhausted, "Too many booking attempts. Try again later.")
		}
		return handler(ctx, req)
	}
}
