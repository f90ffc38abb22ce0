// Package client holds the session-scoped task state for a logged-in
// user and derives the views the presentation layer renders. The task
// list it holds is replaced wholesale on every successful load; derived
// views are recomputed from it, never patched incrementally.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskhub/domain"
)

const responseBodyMaxSize = 4 << 20

// Session is the authenticated context a Controller operates in. It is
// injected at construction; nothing is looked up ambiently.
type Session struct {
	BaseURL string
	Token   string
	User    domain.User
}

// Confirmer gates destructive single or bulk mutations behind an
// explicit yes/no decision.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Controller orchestrates task mutations against the API and owns the
// authoritative in-memory list for the session. Its methods are meant
// to be driven from a single UI goroutine; only the network calls of a
// bulk operation run concurrently.
type Controller struct {
	session Session
	http    *http.Client
	confirm Confirmer
	logger  *log.Logger
	now     func() time.Time

	tasks  []domain.Task
	filter string
	month  time.Month
	year   int
}

// NewController creates a controller bound to the given session.
func NewController(session Session, confirm Confirmer, logger *log.Logger) *Controller {
	if confirm == nil {
		confirm = ConfirmFunc(func(string) bool { return true })
	}
	if logger == nil {
		logger = log.New()
	}
	c := &Controller{
		session: session,
		http:    &http.Client{Timeout: 30 * time.Second},
		confirm: confirm,
		logger:  logger,
		now:     time.Now,
	}
	today := c.now()
	c.month = today.Month()
	c.year = today.Year()
	return c
}

// Authenticated reports whether the session carries a token. The server
// remains the sole authority on token validity; this only gates access
// to protected views.
func (c *Controller) Authenticated() bool {
	return c.session.Token != ""
}

// User returns the cached profile of the session owner.
func (c *Controller) User() domain.User {
	return c.session.User
}

// Logout clears the session credentials and the held task list.
func (c *Controller) Logout() {
	c.session.Token = ""
	c.session.User = domain.User{}
	c.tasks = nil
}

// Load fetches the task list with the current status filter and
// replaces the held list. A stale in-flight response simply loses:
// whichever load resolves last owns the list reference.
func (c *Controller) Load(ctx context.Context) error {
	return c.LoadFiltered(ctx, c.filter)
}

// LoadFiltered fetches with an explicit status filter and remembers it
// for subsequent reloads.
func (c *Controller) LoadFiltered(ctx context.Context, filter string) error {
	c.filter = filter

	path := "/api/tasks"
	if filter != "" && filter != "all" {
		path += "?status=" + url.QueryEscape(filter)
	}

	var resp struct {
		Success bool          `json:"success"`
		Count   int           `json:"count"`
		Data    []domain.Task `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	c.tasks = resp.Data
	return nil
}

// Complete marks one task completed after an explicit confirmation,
// then reloads the list. A declined confirmation is a no-op. On failure
// the held list is left untouched.
func (c *Controller) Complete(ctx context.Context, taskID string) error {
	if !c.confirm.Confirm("Mark this task as completed?") {
		return nil
	}
	if err := c.completeOne(ctx, taskID); err != nil {
		c.logger.WithError(err).Warn(FailureMessage(err))
		return err
	}
	return c.Load(ctx)
}

// Delete removes one task after an explicit confirmation, then reloads.
func (c *Controller) Delete(ctx context.Context, taskID string) error {
	if !c.confirm.Confirm("Delete this task?") {
		return nil
	}
	if err := c.deleteOne(ctx, taskID); err != nil {
		c.logger.WithError(err).Warn(FailureMessage(err))
		return err
	}
	return c.Load(ctx)
}

// BulkComplete marks the selected tasks completed. All requests are
// dispatched together and joined before anything is reported; partial
// success is a normal outcome and succeeded mutations are not rolled
// back. Exactly one reload happens regardless of failures.
func (c *Controller) BulkComplete(ctx context.Context, taskIDs []string) error {
	return c.bulk(ctx, taskIDs,
		fmt.Sprintf("Mark %d task(s) as completed?", len(taskIDs)),
		"completed", c.completeOne)
}

// BulkDelete removes the selected tasks under the same contract as
// BulkComplete.
func (c *Controller) BulkDelete(ctx context.Context, taskIDs []string) error {
	return c.bulk(ctx, taskIDs,
		fmt.Sprintf("Delete %d task(s)?", len(taskIDs)),
		"deleted", c.deleteOne)
}

func (c *Controller) bulk(ctx context.Context, taskIDs []string, prompt, verb string, op func(context.Context, string) error) error {
	if len(taskIDs) == 0 {
		return nil
	}
	if !c.confirm.Confirm(prompt) {
		return nil
	}

	errs := make([]error, len(taskIDs))
	var wg sync.WaitGroup
	for i, id := range taskIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = op(ctx, id)
		}(i, id)
	}
	wg.Wait()

	reloadErr := c.Load(ctx)

	var parts []string
	for i, err := range errs {
		if err != nil {
			parts = append(parts, fmt.Sprintf("task %d: %v", i+1, err))
		}
	}
	if len(parts) > 0 {
		msg := fmt.Sprintf("some tasks could not be %s: %s", verb, strings.Join(parts, ", "))
		c.logger.Warn(msg)
		return errors.New(msg)
	}
	return reloadErr
}

func (c *Controller) completeOne(ctx context.Context, taskID string) error {
	body := struct {
		Status domain.Status `json:"status"`
	}{Status: domain.StatusCompleted}
	return c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(taskID), body, nil)
}

func (c *Controller) deleteOne(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil)
}

func (c *Controller) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.session.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, responseBodyMaxSize))
	if err != nil {
		return err
	}

	if res.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: res.StatusCode, Message: res.Status}
		var envelope struct {
			Message string `json:"message"`
		}
		if sonic.Unmarshal(data, &envelope) == nil && envelope.Message != "" {
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	if out != nil {
		return sonic.Unmarshal(data, out)
	}
	return nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// FailureKind buckets a failed request into the category the
// presentation layer reacts to.
type FailureKind int

const (
	// FailureNetwork is a transport-level failure; the user should be
	// told to check the connection and retry.
	FailureNetwork FailureKind = iota
	// FailureSessionExpired means the server no longer accepts the
	// token; the user must log in again.
	FailureSessionExpired
	// FailureNotFound means the record is gone; the list should be
	// silently refreshed.
	FailureNotFound
	// FailureServer is everything else.
	FailureServer
)

// ClassifyFailure inspects the status and message of a failed call.
func ClassifyFailure(err error) FailureKind {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return FailureNetwork
	}
	switch {
	case apiErr.Status == http.StatusUnauthorized,
		strings.Contains(strings.ToLower(apiErr.Message), "token"):
		return FailureSessionExpired
	case apiErr.Status == http.StatusNotFound:
		return FailureNotFound
	default:
		return FailureServer
	}
}

// FailureMessage renders the user-facing text for a failed call.
func FailureMessage(err error) string {
	switch ClassifyFailure(err) {
	case FailureSessionExpired:
		return "Session expired. Please login again."
	case FailureNotFound:
		return "Task no longer exists. Refreshing the list."
	case FailureNetwork:
		return "Network error. Please check your connection."
	default:
		return "Something went wrong. Please try again."
	}
}
