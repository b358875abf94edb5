package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"docshot/internal/verify"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/xerrors"
)

// Notifier delivers verification reports to a CI webhook. Delivery is
// retried with jittered exponential backoff on connect failures and
// retriable status codes; the report content itself is immutable
// across attempts.
type Notifier struct {
	endpoint string
	client   *http.Client
	strategy Strategy
	log      logr.Logger
}

func NewNotifier(endpoint string, log logr.Logger) *Notifier {
	return &Notifier{
		endpoint: endpoint,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		strategy: NewExponentialBackOff(500*time.Millisecond, 30*time.Second, 4, nil),
		log:      log,
	}
}

func (n *Notifier) Notify(ctx context.Context, report *verify.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return xerrors.Errorf("failed to marshal report: %w", err)
	}

	var attempt uint
	for {
		err := n.post(ctx, payload)
		if err == nil {
			return nil
		}

		sleep, exceeded := n.strategy.Sleep(attempt)
		if exceeded || !retryable(err) {
			return xerrors.Errorf("failed to deliver report to %s: %w", n.endpoint, err)
		}

		n.log.V(1).Info("retrying report delivery", "attempt", attempt, "error", err.Error())

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := n.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &statusError{code: response.StatusCode}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func retryable(err error) bool {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code >= 500 || serr.code == http.StatusConflict
	}

	type temporary interface{ Temporary() bool }
	var terr temporary
	if errors.As(err, &terr) && terr.Temporary() {
		return true
	}
	return errors.Is(err, io.EOF)
}
