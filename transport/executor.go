package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/core"
)

// AuthStrategy supplies the auth header for one attempt. ok=false means the
// integration has no usable credential.
type AuthStrategy interface {
	AuthHeader(ctx context.Context) (name, value string, ok bool, err error)
}

// Limiter gates attempts. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ResponseObserver is implemented by limiters that adapt to provider
// responses, such as backing off after a 429.
type ResponseObserver interface {
	Observe(status int, headers map[string]string)
}

type Doer interface {
	Do(ctx context.Context, req AttemptRequest) (Response, error)
}

// Sleeper waits between attempts and returns early when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RequestOptions describe one logical request. Zero Timeout, Retries and
// RetryDelay fall back to executor defaults; a negative Retries disables
// retrying.
type RequestOptions struct {
	Method     string
	Headers    map[string]string
	Query      map[string]string
	Body       any
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Auth       AuthStrategy
	Limiter    Limiter
}

type Result[T any] struct {
	Success    bool
	Data       T
	Error      *RequestError
	StatusCode int
	Attempts   int
	Headers    map[string]string
}

type Executor struct {
	doer       Doer
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	sleep      Sleeper
	logger     glog.Logger
}

type ExecutorOption func(*Executor)

func WithDoer(doer Doer) ExecutorOption {
	return func(e *Executor) {
		if doer != nil {
			e.doer = doer
		}
	}
}

func WithHTTPClient(client HTTPDoer) ExecutorOption {
	return func(e *Executor) {
		if client != nil {
			e.doer = NewRESTAdapter(client)
		}
	}
}

func WithSleeper(sleep Sleeper) ExecutorOption {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func WithLogger(logger glog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) ExecutorOption {
	return func(e *Executor) {
		if provider != nil {
			_, e.logger = glog.Resolve("integrations.transport", provider, nil)
		}
	}
}

// NewExecutor reads defaults from cfg; zero fields use the package defaults.
func NewExecutor(cfg core.TransportConfig, opts ...ExecutorOption) *Executor {
	e := &Executor{
		doer:       NewRESTAdapter(nil),
		timeout:    millis(cfg.TimeoutMS, core.DefaultRequestTimeoutMS),
		retries:    cfg.Retries,
		retryDelay: millis(cfg.RetryDelayMS, core.DefaultRetryDelayMS),
		sleep:      sleepContext,
		logger:     glog.Nop(),
	}
	if e.retries == 0 {
		e.retries = core.DefaultRequestRetries
	}
	if e.retries < 0 {
		e.retries = 0
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = glog.Ensure(e.logger)
	return e
}

// Do performs a request and leaves the body undecoded.
func (e *Executor) Do(ctx context.Context, endpoint string, opts RequestOptions) Result[[]byte] {
	return Request[[]byte](ctx, e, endpoint, opts)
}

// Request performs endpoint with retries and decodes a successful body into
// T. Failures are reported in Result.Error, never as a panic or Go error.
func Request[T any](ctx context.Context, e *Executor, endpoint string, opts RequestOptions) Result[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if e == nil {
		e = NewExecutor(core.TransportConfig{})
	}
	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return failed[T](&RequestError{Code: CodeInvalidRequest, Message: err.Error(), Cause: err}, 0, 0)
	}

	timeout := e.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	retries := e.retries
	switch {
	case opts.Retries > 0:
		retries = opts.Retries
	case opts.Retries < 0:
		retries = 0
	}
	delay := e.retryDelay
	if opts.RetryDelay > 0 {
		delay = opts.RetryDelay
	}

	var last *RequestError
	var lastStatus int
	for attempt := 1; attempt <= retries+1; attempt++ {
		if attempt > 1 {
			wait := delay * time.Duration(attempt-1)
			e.logger.Warn("request retrying",
				"endpoint", endpoint,
				"attempt", attempt,
				"delay_ms", wait.Milliseconds(),
				"code", last.Code,
			)
			if err := e.sleep(ctx, wait); err != nil {
				return failed[T](canceled(err), lastStatus, attempt-1)
			}
		}

		res, reqErr := e.attempt(ctx, endpoint, opts, body, contentType, timeout)
		if reqErr == nil {
			data, err := decodeBody[T](res.Body)
			if err != nil {
				return Result[T]{
					Error: &RequestError{
						Code:    CodeDecodeError,
						Message: err.Error(),
						Status:  res.StatusCode,
						Cause:   err,
					},
					StatusCode: res.StatusCode,
					Attempts:   attempt,
					Headers:    res.Headers,
				}
			}
			return Result[T]{
				Success:    true,
				Data:       data,
				StatusCode: res.StatusCode,
				Attempts:   attempt,
				Headers:    res.Headers,
			}
		}
		last, lastStatus = reqErr, reqErr.Status
		if !reqErr.Retryable || ctx.Err() != nil {
			if ctx.Err() != nil && reqErr.Code != CodeCanceled {
				last = canceled(ctx.Err())
			}
			return failed[T](last, lastStatus, attempt)
		}
	}
	return failed[T](last, lastStatus, retries+1)
}

func (e *Executor) attempt(
	ctx context.Context,
	endpoint string,
	opts RequestOptions,
	body []byte,
	contentType string,
	timeout time.Duration,
) (Response, *RequestError) {
	if opts.Limiter != nil {
		if err := opts.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return Response{}, canceled(ctx.Err())
			}
			return Response{}, &RequestError{Code: CodeRateLimitedLocal, Message: err.Error(), Cause: err}
		}
	}

	headers := make(map[string]string, len(opts.Headers)+2)
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	for key, value := range opts.Headers {
		headers[key] = value
	}
	if opts.Auth != nil {
		name, value, ok, err := opts.Auth.AuthHeader(ctx)
		if err != nil {
			return Response{}, &RequestError{Code: CodeAuthUnavailable, Message: err.Error(), Cause: err}
		}
		if !ok {
			return Response{}, &RequestError{Code: CodeAuthUnavailable, Message: "no usable credentials for integration"}
		}
		if strings.TrimSpace(name) != "" {
			headers[name] = value
		}
	}

	res, err := e.doer.Do(ctx, AttemptRequest{
		Method:  opts.Method,
		URL:     endpoint,
		Headers: headers,
		Query:   opts.Query,
		Body:    body,
		Timeout: timeout,
	})
	if err != nil {
		return Response{}, classifyError(ctx, err)
	}
	if observer, ok := opts.Limiter.(ResponseObserver); ok {
		observer.Observe(res.StatusCode, res.Headers)
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return res, nil
	}
	return res, &RequestError{
		Code:      HTTPStatusCode(res.StatusCode),
		Message:   ExtractErrorMessage(res.Body, res.StatusCode, res.StatusText),
		Status:    res.StatusCode,
		Retryable: retryableStatus(res.StatusCode),
	}
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func classifyError(ctx context.Context, err error) *RequestError {
	if ctx.Err() != nil {
		return canceled(ctx.Err())
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch rich.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryInternal:
			return &RequestError{Code: CodeInvalidRequest, Message: err.Error(), Cause: err}
		}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &RequestError{Code: CodeTimeout, Message: "request timed out", Retryable: true, Cause: err}
	}
	return &RequestError{Code: CodeNetworkError, Message: err.Error(), Retryable: true, Cause: err}
}

func canceled(err error) *RequestError {
	return &RequestError{Code: CodeCanceled, Message: "request canceled", Cause: err}
}

func failed[T any](err *RequestError, status, attempts int) Result[T] {
	return Result[T]{Error: err, StatusCode: status, Attempts: attempts}
}

func encodeBody(body any) ([]byte, string, error) {
	switch value := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return value, "", nil
	case string:
		return []byte(value), "", nil
	case url.Values:
		return []byte(value.Encode()), "application/x-www-form-urlencoded", nil
	case json.RawMessage:
		return value, "application/json", nil
	default:
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, "", fmt.Errorf("transport: encode request body: %w", err)
		}
		return payload, "application/json", nil
	}
}

func decodeBody[T any](body []byte) (T, error) {
	var out T
	switch target := any(&out).(type) {
	case *[]byte:
		*target = append([]byte(nil), body...)
		return out, nil
	case *string:
		*target = string(body)
		return out, nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("transport: decode response body: %w", err)
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func millis(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Millisecond
}
