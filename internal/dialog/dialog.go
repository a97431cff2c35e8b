// Package dialog holds identity update prompts until the user answers them.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/pwa-update-manager/internal/approval"
)

//go:generate mockgen -destination=mocks/mock_dialog.go -package=mocks -source=dialog.go Presenter

// ErrNoPendingPrompt is returned when an app has no prompt awaiting an answer
var ErrNoPendingPrompt = errors.New("no pending prompt")

// Action is the user's answer to a prompt
type Action string

const (
	// ActionPositive accepts the update
	ActionPositive Action = "positive"
	// ActionNegative rejects the update
	ActionNegative Action = "negative"
	// ActionDismiss closes the prompt without choosing
	ActionDismiss Action = "dismiss"
)

// ParseAction parses an action name
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(s)); a {
	case ActionPositive, ActionNegative, ActionDismiss:
		return a, nil
	default:
		return "", fmt.Errorf("unknown prompt action '%s'", s)
	}
}

// Approves reports whether the action lets the update proceed. Dismissing counts as
// approval so a user cannot stay on an old version by closing the prompt.
func (a Action) Approves() bool {
	return a != ActionNegative
}

// Presenter shows a prompt and reports the answer through onAnswer, exactly once
type Presenter interface {
	Present(ctx context.Context, appID string, prompt *approval.PromptDetails, onAnswer func(Action)) error
}

// Pending is a prompt awaiting an answer
type Pending struct {
	AppID     string                  `json:"appId"`
	Prompt    *approval.PromptDetails `json:"prompt"`
	CreatedAt time.Time               `json:"createdAt"`

	onAnswer func(Action)
}

// Queue is a Presenter that keeps prompts until they are resolved through the API
type Queue struct {
	mu      sync.Mutex
	pending map[string]*Pending
	now     func() time.Time
}

var _ Presenter = (*Queue)(nil)

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		pending: make(map[string]*Pending),
		now:     time.Now,
	}
}

// Present implements Presenter. A prompt already pending for the app is replaced and
// answered with ActionDismiss.
func (q *Queue) Present(_ context.Context, appID string, prompt *approval.PromptDetails, onAnswer func(Action)) error {
	if prompt == nil || onAnswer == nil {
		return errors.New("prompt and answer callback are required")
	}

	q.mu.Lock()
	previous := q.pending[appID]
	q.pending[appID] = &Pending{
		AppID:     appID,
		Prompt:    prompt,
		CreatedAt: q.now(),
		onAnswer:  onAnswer,
	}
	q.mu.Unlock()

	if previous != nil {
		previous.onAnswer(ActionDismiss)
	}
	slog.Info("Identity update prompt pending",
		"app_id", appID,
		"name_changing", prompt.NameChanging,
		"short_name_changing", prompt.ShortNameChanging,
		"icon_changing", prompt.IconChanging)
	return nil
}

// List returns the pending prompts ordered by app ID
func (q *Queue) List() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Pending, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out
}

// Get returns the pending prompt of appID
func (q *Queue) Get(appID string) (Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.pending[appID]
	if !ok {
		return Pending{}, ErrNoPendingPrompt
	}
	return *p, nil
}

// Resolve answers the pending prompt of appID
func (q *Queue) Resolve(appID string, action Action) error {
	q.mu.Lock()
	p, ok := q.pending[appID]
	delete(q.pending, appID)
	q.mu.Unlock()

	if !ok {
		return ErrNoPendingPrompt
	}
	p.onAnswer(action)
	return nil
}

// Withdraw drops the prompt of appID without answering it
func (q *Queue) Withdraw(appID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, appID)
}
