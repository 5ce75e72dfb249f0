package preferences

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/backend/memory"
	"flux/internal/models"
	"flux/internal/snowflake"
	"flux/internal/view"
)

type fixture struct {
	memory   *memory.Store
	store    *memory.Counting
	files    *memory.Files
	identity *memory.Identity
	sink     *view.Recorder
	prefs    *Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ids, err := snowflake.New(5)
	require.NoError(t, err)

	mem := memory.NewStore(ids, zap.NewNop().Sugar())
	f := fixture{
		memory:   mem,
		store:    memory.NewCounting(mem),
		files:    memory.NewFiles(),
		identity: memory.SignedIn(models.User{ID: 7, Email: "ana@example.com"}),
		sink:     &view.Recorder{},
	}
	f.prefs = New(f.store, f.files, f.identity, f.sink, nil, zap.NewNop().Sugar())
	return f
}

func ptr[T any](v T) *T {
	return &v
}

func TestFieldsVisibleFor(t *testing.T) {
	tests := []struct {
		name string
		tier Tier
		want Fields
	}{
		{name: "Free sees nothing extra", tier: TierFree, want: Fields{}},
		{name: "Glow sees background and prefixes", tier: TierGlow, want: Fields{Background: true, Prefixes: true}},
		{name: "Echo sees everything", tier: TierEcho, want: Fields{Background: true, Gradient: true, Prefixes: true}},
		{name: "Unknown tier is free", tier: Tier("gold"), want: Fields{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FieldsVisibleFor(tt.tier))
		})
	}
}

func TestLoadWithoutDocumentKeepsDefaults(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.prefs.Load(context.Background()))
	assert.Equal(t, Defaults(), f.prefs.Preferences())

	state := f.prefs.State()
	assert.Empty(t, state.Status.Error)
	assert.False(t, state.Status.Loading)
}

func TestLoadKeepsExplicitZeroValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.memory.SetDocument(ctx, models.PreferencesCollection, "7", backend.Document{
		"theme":                "dark",
		"background":           "",
		"notificationsEnabled": false,
		"prefixes":             []string{},
		"emojiPack":            nil,
		"tier":                 "glow",
	}))

	require.NoError(t, f.prefs.Load(ctx))
	got := f.prefs.Preferences()

	assert.Equal(t, "dark", got.Theme)
	assert.Equal(t, "", got.Background)
	assert.False(t, got.NotificationsEnabled)
	assert.Equal(t, []string{}, got.Prefixes)
	assert.Equal(t, "default", got.EmojiPack)
	assert.Equal(t, "", got.GradientBackground)
	assert.Equal(t, TierGlow, got.Tier)
	assert.Equal(t, []string{}, got.EmojiImages)
}

func TestLoadUnknownTierFallsBackToFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.memory.SetDocument(ctx, models.PreferencesCollection, "7", backend.Document{"theme": "light", "tier": "platinum"}))

	require.NoError(t, f.prefs.Load(ctx))
	got := f.prefs.Preferences()
	assert.Equal(t, TierFree, got.Tier)
	assert.Equal(t, "light", got.Theme)
}

func TestLoadNeedsUser(t *testing.T) {
	f := newFixture(t)
	f.identity.Set(models.User{}, false)

	assert.ErrorIs(t, f.prefs.Load(context.Background()), backend.ErrUnauthenticated)
}

func TestUserChangeReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.memory.SetDocument(ctx, models.PreferencesCollection, "7", backend.Document{"theme": "dark"}))

	require.NoError(t, f.prefs.Load(ctx))
	assert.Equal(t, "dark", f.prefs.Preferences().Theme)

	f.identity.Set(models.User{ID: 8, Email: "bob@example.com"}, true)
	require.NoError(t, f.prefs.LoadIfUserChanged(ctx))
	assert.Equal(t, Defaults(), f.prefs.Preferences())
}

func TestSaveOverwritesWholeDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.memory.SetDocument(ctx, models.PreferencesCollection, "7", backend.Document{"theme": "dark", "tier": "echo", "legacy": "x"}))
	require.NoError(t, f.prefs.Load(ctx))

	f.prefs.Update(Patch{Theme: ptr("light"), GradientBackground: ptr("linear-gradient(red, blue)")})
	require.NoError(t, f.prefs.Save(ctx))

	doc, err := f.memory.GetDocument(ctx, models.PreferencesCollection, "7")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"theme": "light",
		"background": "#ffffff",
		"gradientBackground": "linear-gradient(red, blue)",
		"emojiPack": "default",
		"notificationsEnabled": true,
		"prefixes": ["!"],
		"tier": "echo",
		"emojiImages": []
	}`, string(doc.Data))

	assert.True(t, f.prefs.State().Status.Saved)
}

func TestSaveKeepsHiddenFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.memory.SetDocument(ctx, models.PreferencesCollection, "7", backend.Document{"tier": "free", "gradientBackground": "old-gradient"}))
	require.NoError(t, f.prefs.Load(ctx))

	assert.False(t, f.prefs.State().Visible.Gradient)
	require.NoError(t, f.prefs.Save(ctx))

	doc, err := f.memory.GetDocument(ctx, models.PreferencesCollection, "7")
	require.NoError(t, err)
	var saved Preferences
	require.NoError(t, doc.DataTo(&saved))
	assert.Equal(t, "old-gradient", saved.GradientBackground)
}

func TestSaveFailureSetsError(t *testing.T) {
	f := newFixture(t)
	f.store.FailWrites = errors.New("offline")

	assert.Error(t, f.prefs.Save(context.Background()))
	state := f.prefs.State()
	assert.NotEmpty(t, state.Status.Error)
	assert.False(t, state.Status.Saved)

	event, ok := f.sink.Last(view.TypePreferences)
	require.True(t, ok)
	assert.NotEmpty(t, event.Data.(State).Status.Error)
}

func TestPrefixLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// defaults start with one prefix
	for i := 1; i < MaxPrefixes; i++ {
		require.NoError(t, f.prefs.AddPrefix())
		require.NoError(t, f.prefs.SetPrefix(i, fmt.Sprintf("p%d", i)))
	}
	require.Len(t, f.prefs.Preferences().Prefixes, MaxPrefixes)
	assert.False(t, f.prefs.State().CanAdd)

	require.NoError(t, f.prefs.Save(ctx))
	assert.Equal(t, 1, f.store.Sets())

	assert.ErrorIs(t, f.prefs.AddPrefix(), ErrPrefixLimit)
	assert.Len(t, f.prefs.Preferences().Prefixes, MaxPrefixes)
	assert.Equal(t, 1, f.store.Sets())
}

func TestSetPrefixOutOfRange(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.prefs.SetPrefix(1, "?"), ErrPrefixIndex)
	assert.ErrorIs(t, f.prefs.SetPrefix(-1, "?"), ErrPrefixIndex)
	require.NoError(t, f.prefs.SetPrefix(0, "?"))
	assert.Equal(t, []string{"?"}, f.prefs.Preferences().Prefixes)
}

func TestUpdateKeepsStoredTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.memory.SetDocument(ctx, models.PreferencesCollection, "7", backend.Document{"tier": "glow"}))
	require.NoError(t, f.prefs.Load(ctx))

	f.prefs.Update(Patch{Theme: ptr("dark"), NotificationsEnabled: ptr(false)})

	got := f.prefs.Preferences()
	assert.Equal(t, TierGlow, got.Tier)
	assert.Equal(t, "dark", got.Theme)
	assert.False(t, got.NotificationsEnabled)
	assert.False(t, f.prefs.State().Status.Saved)

	// a free user stays free whatever is patched
	f.prefs.Reset()
	f.prefs.Update(Patch{Background: ptr("#000000")})
	assert.Equal(t, TierFree, f.prefs.Preferences().Tier)
	assert.Equal(t, Fields{}, f.prefs.State().Visible)
}

func TestUploadEmojiImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.UnixMilli(1700000000000)
	f.prefs.now = func() time.Time { return at }

	err := f.prefs.UploadEmojiImages(ctx, []Upload{
		{Name: "cat.png", ContentType: "image/png", Data: []byte("1")},
		{Name: "dir/dog.png", ContentType: "image/png", Data: []byte("2")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"emoji/7/1700000000000_0_cat.png", "emoji/7/1700000000000_1_dog.png"}, f.files.Keys())
	assert.Equal(t, []string{"mem://emoji/7/1700000000000_0_cat.png", "mem://emoji/7/1700000000000_1_dog.png"}, f.prefs.Preferences().EmojiImages)

	// not stored until saved
	assert.Zero(t, f.store.Sets())
	_, err = f.memory.GetDocument(ctx, models.PreferencesCollection, "7")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestUploadEmojiLimit(t *testing.T) {
	f := newFixture(t)
	uploads := make([]Upload, MaxEmojiImages+1)
	for i := range uploads {
		uploads[i] = Upload{Name: fmt.Sprintf("%d.png", i)}
	}

	assert.ErrorIs(t, f.prefs.UploadEmojiImages(context.Background(), uploads), ErrEmojiLimit)
	assert.Empty(t, f.files.Keys())
	assert.NotEmpty(t, f.prefs.State().Status.Error)

	require.NoError(t, f.prefs.UploadEmojiImages(context.Background(), uploads[:MaxEmojiImages]))
	assert.Equal(t, 0, f.prefs.State().CanUpload)
}

func TestUploadFailureStopsBatch(t *testing.T) {
	f := newFixture(t)
	f.files.FailAfter = 1
	f.files.FailWith = errors.New("bucket gone")

	err := f.prefs.UploadEmojiImages(context.Background(), []Upload{{Name: "a.png"}, {Name: "b.png"}, {Name: "c.png"}})
	assert.Error(t, err)
	assert.Len(t, f.prefs.Preferences().EmojiImages, 1)
	assert.Contains(t, f.prefs.State().Status.Error, "b.png")
}

func TestEmojiKey(t *testing.T) {
	at := time.UnixMilli(42)
	assert.Equal(t, "emoji/1/42_0_a.png", EmojiKey("1", at, 0, "a.png"))
	assert.Equal(t, "emoji/1/42_3_b.png", EmojiKey("1", at, 3, "..\\..\\b.png"))
}

func TestUploadSameNamesKeepsEveryImage(t *testing.T) {
	f := newFixture(t)
	f.prefs.now = func() time.Time { return time.UnixMilli(1700000000000) }

	err := f.prefs.UploadEmojiImages(context.Background(), []Upload{
		{Name: "image.png", ContentType: "image/png", Data: []byte("1")},
		{Name: "image.png", ContentType: "image/png", Data: []byte("2")},
	})
	require.NoError(t, err)

	images := f.prefs.Preferences().EmojiImages
	require.Len(t, images, 2)
	assert.NotEqual(t, images[0], images[1])
	assert.Len(t, f.files.Keys(), 2)
}
