package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/hookrelay/internal/domain"
	"github.com/kursadbilgin/hookrelay/internal/signing"
)

const (
	DefaultTimeout = 10 * time.Second
	userAgent      = "hookrelay/1.0"

	// maxDrainBytes bounds how much of an oversized body is discarded so the
	// connection can go back to the pool.
	maxDrainBytes = 64 << 10
)

// Sender performs exactly one signed POST per call.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

type Request struct {
	URL           string
	DeliveryID    string
	AttemptNumber int
	Payload       []byte
	Secret        string
}

// Response is returned whenever the request was attempted, including on failure,
// so that latency and any partial response can be recorded.
type Response struct {
	StatusCode int
	Body       string
	Latency    time.Duration
}

type RestySender struct {
	client *resty.Client
	now    func() time.Time
}

func NewRestySender(timeout time.Duration) (*RestySender, error) {
	return NewRestySenderWithClient(resty.New(), timeout)
}

func NewRestySenderWithClient(client *resty.Client, timeout time.Duration) (*RestySender, error) {
	if client == nil {
		return nil, errors.New("resty client is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", userAgent)

	return &RestySender{
		client: client,
		now:    time.Now,
	}, nil
}

func (s *RestySender) Send(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("%w: target url is required", domain.ErrValidation)
	}

	started := s.now()
	response, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Content-Type", "application/json").
		SetHeader(signing.HeaderSignature, signing.Sign(req.Payload, req.Secret)).
		SetHeader(signing.HeaderDeliveryID, req.DeliveryID).
		SetHeader(signing.HeaderAttempt, strconv.Itoa(req.AttemptNumber)).
		SetBody(req.Payload).
		Post(req.URL)

	result := &Response{}
	if err != nil {
		result.Latency = s.now().Sub(started)
		return result, &SendError{Message: "request failed", Cause: err}
	}

	result.StatusCode = response.StatusCode()
	result.Body = readExcerpt(response.RawBody())
	result.Latency = s.now().Sub(started)

	if result.StatusCode >= http.StatusOK && result.StatusCode < http.StatusMultipleChoices {
		return result, nil
	}

	return result, &SendError{
		StatusCode: result.StatusCode,
		Message:    fmt.Sprintf("receiver returned status %d", result.StatusCode),
	}
}

// readExcerpt keeps one excerpt worth of body, discards up to maxDrainBytes of the
// rest and closes it.
func readExcerpt(body io.ReadCloser) string {
	if body == nil {
		return ""
	}
	defer body.Close()

	raw, _ := io.ReadAll(io.LimitReader(body, domain.MaxResponseExcerpt+utf8.UTFMax))
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	return domain.TruncateExcerpt(strings.ToValidUTF8(string(raw), ""))
}
