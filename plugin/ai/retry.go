package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hrygo/nfintake/plugin/ai/timeout"
)

// errEmptyResponse marks a completed call whose response carried no usable text.
// Asking again returns the same answer, so it is never retried.
var errEmptyResponse = errors.New("empty model response")

// newBackOff builds the delay schedule between provider attempts.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// withRetry runs fn up to timeout.MaxAttempts times. Client errors and context
// cancellation stop the loop at once.
func withRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), timeout.MaxAttempts-1), ctx)
	return backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		slog.Warn("provider call failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"next_in", next,
			"error", err,
		)
	})
}

// isRetryable reports whether a provider error is transient. Errors that no
// provider classifies are retried only when they come from the network.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, errEmptyResponse) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return retryableStatus(gErr.Code)
	}
	if code := status.Code(err); code != codes.Unknown {
		return retryableCode(code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// retryableCode classifies gRPC status codes returned by the Gemini client.
func retryableCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return true
	default:
		return false
	}
}

func retryableStatus(code int) bool {
	if code == 0 {
		return true
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
