package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readingsurvey/internal/cache"
	"readingsurvey/internal/model"
)

func TestCheckpointerRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemorySessionStore()
	cp := NewCheckpointer(store, "tab-1", 5)

	empty, err := cp.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	require.NoError(t, cp.SaveParticipantCode(ctx, "abcd"))
	require.NoError(t, cp.SaveConsent(ctx, true))
	require.NoError(t, cp.SaveCompletedCount(ctx, 3))
	require.NoError(t, cp.SaveAssignment(ctx, &model.Assignment{TextID: "t4", Topic: "health", AllocationID: "a4"}))
	require.NoError(t, cp.SaveBackground(ctx, &model.Background{Gender: "f", Age: "30", Education: "ba", SocialMediaTime: "1h", Country: "JP"}))

	got, err := cp.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abcd", got.ParticipantCode)
	assert.True(t, got.ConsentGiven)
	assert.Equal(t, 3, got.CompletedCount)
	assert.Equal(t, "t4", got.CurrentAssignment.TextID)
	assert.Equal(t, "JP", got.Background.Country)

	require.NoError(t, cp.SaveAssignment(ctx, nil))
	require.NoError(t, cp.SaveConsent(ctx, false))
	got, err = cp.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentAssignment)
	assert.False(t, got.ConsentGiven)

	other, err := NewCheckpointer(store, "tab-2", 5).Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, cp.Clear(ctx))
	got, err = cp.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCheckpointerCorruptionRestoresNothing(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{name: "non-integer count", values: map[string]string{KeyParticipantCode: "abcd", KeyCompletedCount: "three"}},
		{name: "negative count", values: map[string]string{KeyParticipantCode: "abcd", KeyCompletedCount: "-1"}},
		{name: "count above target", values: map[string]string{KeyParticipantCode: "abcd", KeyCompletedCount: "6"}},
		{name: "bad assignment json", values: map[string]string{KeyParticipantCode: "abcd", KeyAssignedText: "{"}},
		{name: "assignment without id", values: map[string]string{KeyAssignedText: `{"topic":"x"}`}},
		{name: "consent without code", values: map[string]string{KeyConsentGiven: "1"}},
		{name: "consent not a flag", values: map[string]string{KeyParticipantCode: "abcd", KeyConsentGiven: "yes"}},
		{name: "bad background json", values: map[string]string{KeyParticipantCode: "abcd", KeyBackground: "[1,2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := cache.NewMemorySessionStore()
			for k, v := range tt.values {
				require.NoError(t, store.Set(ctx, "tab", k, v))
			}

			got, err := NewCheckpointer(store, "tab", 5).Restore(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestCheckpointerPrefetchedAssignmentWithoutConsent(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemorySessionStore()
	require.NoError(t, store.Set(ctx, "tab", KeyAssignedText, `{"text_id":"t1","topic":"x"}`))

	got, err := NewCheckpointer(store, "tab", 5).Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.ConsentGiven)
	assert.Equal(t, "t1", got.CurrentAssignment.TextID)
}
