package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"readingsurvey/internal/cache"
	"readingsurvey/internal/model"
)

// Session store keys
const (
	KeyParticipantCode = "participant_code"
	KeyConsentGiven    = "consent_given"
	KeyCompletedCount  = "completed_count"
	KeyAssignedText    = "assigned_text"
	KeyBackground      = "background"
)

// Checkpointer is the typed save/restore layer over a tab's session store
type Checkpointer struct {
	store  cache.SessionStore
	tabID  string
	target int
}

// NewCheckpointer scopes store to tabID. target bounds a valid completed count.
func NewCheckpointer(store cache.SessionStore, tabID string, target int) *Checkpointer {
	return &Checkpointer{store: store, tabID: tabID, target: target}
}

func (c *Checkpointer) SaveParticipantCode(ctx context.Context, code string) error {
	return c.store.Set(ctx, c.tabID, KeyParticipantCode, code)
}

func (c *Checkpointer) SaveConsent(ctx context.Context, given bool) error {
	if !given {
		return c.store.Delete(ctx, c.tabID, KeyConsentGiven)
	}
	return c.store.Set(ctx, c.tabID, KeyConsentGiven, "1")
}

func (c *Checkpointer) SaveCompletedCount(ctx context.Context, n int) error {
	return c.store.Set(ctx, c.tabID, KeyCompletedCount, strconv.Itoa(n))
}

// SaveAssignment stores a, or deletes the key when a is nil
func (c *Checkpointer) SaveAssignment(ctx context.Context, a *model.Assignment) error {
	if a == nil {
		return c.store.Delete(ctx, c.tabID, KeyAssignedText)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.tabID, KeyAssignedText, string(data))
}

// SaveBackground stores b, or deletes the key when b is nil
func (c *Checkpointer) SaveBackground(ctx context.Context, b *model.Background) error {
	if b == nil {
		return c.store.Delete(ctx, c.tabID, KeyBackground)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.tabID, KeyBackground, string(data))
}

// Clear removes everything stored for the tab
func (c *Checkpointer) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.tabID)
}

// Restore reads the checkpoint. It returns nil when nothing is stored or when
// any stored value is corrupt; it never returns partial state. The error is
// only set when the store itself fails.
func (c *Checkpointer) Restore(ctx context.Context) (*model.Checkpoint, error) {
	values := make(map[string]string, 5)
	for _, key := range []string{KeyParticipantCode, KeyConsentGiven, KeyCompletedCount, KeyAssignedText, KeyBackground} {
		v, ok, err := c.store.Get(ctx, c.tabID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if ok {
			values[key] = v
		}
	}
	if len(values) == 0 {
		return nil, nil
	}
	cp, ok := c.decode(values)
	if !ok {
		return nil, nil
	}
	return cp, nil
}

func (c *Checkpointer) decode(values map[string]string) (*model.Checkpoint, bool) {
	cp := &model.Checkpoint{ParticipantCode: values[KeyParticipantCode]}

	if v, ok := values[KeyConsentGiven]; ok {
		if v != "1" || cp.ParticipantCode == "" {
			return nil, false
		}
		cp.ConsentGiven = true
	}

	if v, ok := values[KeyCompletedCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > c.target {
			return nil, false
		}
		cp.CompletedCount = n
	}

	if v, ok := values[KeyAssignedText]; ok {
		var a model.Assignment
		if err := json.Unmarshal([]byte(v), &a); err != nil || a.TextID == "" {
			return nil, false
		}
		cp.CurrentAssignment = &a
	}

	if v, ok := values[KeyBackground]; ok {
		var b model.Background
		if err := json.Unmarshal([]byte(v), &b); err != nil {
			return nil, false
		}
		cp.Background = &b
	}
	return cp, true
}
