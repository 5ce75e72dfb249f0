// Package preferences is the settings panel of a UI session: one document per
// user, loaded when the user changes and written back whole on save.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/models"
	"flux/internal/observability"
	"flux/internal/rabbitmq"
	"flux/internal/view"
)

const (
	MaxPrefixes    = 25
	MaxEmojiImages = 15
)

var (
	ErrPrefixLimit = fmt.Errorf("at most %d prefixes", MaxPrefixes)
	ErrEmojiLimit  = fmt.Errorf("at most %d emoji images", MaxEmojiImages)
	ErrPrefixIndex = errors.New("no prefix at that position")
	ErrUnknownTier = errors.New("unknown tier")
)

type Preferences struct {
	Theme                string   `json:"theme"`
	Background           string   `json:"background"`
	GradientBackground   string   `json:"gradientBackground"`
	EmojiPack            string   `json:"emojiPack"`
	NotificationsEnabled bool     `json:"notificationsEnabled"`
	Prefixes             []string `json:"prefixes"`
	Tier                 Tier     `json:"tier"`
	EmojiImages          []string `json:"emojiImages"`
}

func Defaults() Preferences {
	return Preferences{
		Theme:                "default",
		Background:           "#ffffff",
		GradientBackground:   "",
		EmojiPack:            "default",
		NotificationsEnabled: true,
		Prefixes:             []string{"!"},
		Tier:                 TierFree,
		EmojiImages:          []string{},
	}
}

func (p Preferences) clone() Preferences {
	p.Prefixes = slices.Clone(p.Prefixes)
	p.EmojiImages = slices.Clone(p.EmojiImages)
	return p
}

func (p Preferences) document() backend.Document {
	return backend.Document{
		"theme":                p.Theme,
		"background":           p.Background,
		"gradientBackground":   p.GradientBackground,
		"emojiPack":            p.EmojiPack,
		"notificationsEnabled": p.NotificationsEnabled,
		"prefixes":             slices.Clone(p.Prefixes),
		"tier":                 string(p.Tier),
		"emojiImages":          slices.Clone(p.EmojiImages),
	}
}

// stored mirrors the document, a nil field was missing or null.
type stored struct {
	Theme                *string   `json:"theme"`
	Background           *string   `json:"background"`
	GradientBackground   *string   `json:"gradientBackground"`
	EmojiPack            *string   `json:"emojiPack"`
	NotificationsEnabled *bool     `json:"notificationsEnabled"`
	Prefixes             *[]string `json:"prefixes"`
	Tier                 *string   `json:"tier"`
	EmojiImages          *[]string `json:"emojiImages"`
}

func orDefault[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}

// decode fills missing fields with their defaults and keeps explicit zero values.
func decode(doc backend.DocumentSnapshot) (Preferences, error) {
	var s stored
	if err := doc.DataTo(&s); err != nil {
		return Preferences{}, err
	}

	defaults := Defaults()
	p := Preferences{
		Theme:                orDefault(s.Theme, defaults.Theme),
		Background:           orDefault(s.Background, defaults.Background),
		GradientBackground:   orDefault(s.GradientBackground, defaults.GradientBackground),
		EmojiPack:            orDefault(s.EmojiPack, defaults.EmojiPack),
		NotificationsEnabled: orDefault(s.NotificationsEnabled, defaults.NotificationsEnabled),
		Prefixes:             orDefault(s.Prefixes, defaults.Prefixes),
		Tier:                 defaults.Tier,
		EmojiImages:          orDefault(s.EmojiImages, defaults.EmojiImages),
	}
	if p.Prefixes == nil {
		p.Prefixes = []string{}
	}
	if p.EmojiImages == nil {
		p.EmojiImages = []string{}
	}
	if s.Tier != nil {
		tier, ok := ParseTier(*s.Tier)
		p.Tier = tier
		if !ok {
			// everything else is usable, the tier falls back to free
			return p, fmt.Errorf("%w %q", ErrUnknownTier, *s.Tier)
		}
	}
	return p, nil
}

// Status is the outcome of the last load, save or upload.
type Status struct {
	Loading   bool   `json:"loading"`
	Saving    bool   `json:"saving"`
	Uploading bool   `json:"uploading"`
	Saved     bool   `json:"saved"`
	Error     string `json:"error,omitempty"`
}

type State struct {
	Preferences Preferences `json:"preferences"`
	Visible     Fields      `json:"visible"`
	Status      Status      `json:"status"`
	CanAdd      bool        `json:"canAddPrefix"`
	CanUpload   int         `json:"canUpload"`
}

// Patch changes the fields that are set.
type Patch struct {
	Theme                *string `json:"theme"`
	Background           *string `json:"background"`
	GradientBackground   *string `json:"gradientBackground"`
	EmojiPack            *string `json:"emojiPack"`
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
}

// Upload is one image picked for the emoji pack.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type Store struct {
	store    backend.Store
	files    backend.Files
	identity backend.Identity
	sink     view.Sink
	audit    *rabbitmq.Audit
	sugar    *zap.SugaredLogger
	now      func() time.Time

	mutex       sync.Mutex
	preferences Preferences
	status      Status
	// loadedFor is the user the preferences belong to
	loadedFor string
}

func New(store backend.Store, files backend.Files, identity backend.Identity, sink view.Sink, audit *rabbitmq.Audit, sugar *zap.SugaredLogger) *Store {
	return &Store{
		store:       store,
		files:       files,
		identity:    identity,
		sink:        sink,
		audit:       audit,
		sugar:       sugar,
		now:         time.Now,
		preferences: Defaults(),
	}
}

// Load reads the signed in user's document. A user without one keeps the
// defaults.
func (s *Store) Load(ctx context.Context) error {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return backend.ErrUnauthenticated
	}

	s.mutex.Lock()
	if s.loadedFor != user.UID() {
		s.preferences = Defaults()
	}
	s.loadedFor = user.UID()
	s.status = Status{Loading: true}
	s.emitLocked()
	s.mutex.Unlock()

	doc, err := s.store.GetDocument(ctx, models.PreferencesCollection, user.UID())
	if errors.Is(err, backend.ErrNotFound) {
		s.finish(user.UID(), nil, Status{})
		return nil
	} else if err != nil {
		s.sugar.Errorf("Couldn't load preferences of user %s: %v", user.UID(), err)
		s.finish(user.UID(), nil, Status{Error: "Couldn't load settings"})
		return err
	}

	loaded, err := decode(doc)
	if errors.Is(err, ErrUnknownTier) {
		s.sugar.Warnf("Preferences of user %s: %v", user.UID(), err)
	} else if err != nil {
		s.sugar.Warnf("Preferences of user %s are malformed: %v", user.UID(), err)
		s.finish(user.UID(), nil, Status{Error: "Couldn't load settings"})
		return err
	}

	s.finish(user.UID(), &loaded, Status{})
	return nil
}

// LoadIfUserChanged loads only when the signed in user isn't the one the
// current preferences belong to.
func (s *Store) LoadIfUserChanged(ctx context.Context) error {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return backend.ErrUnauthenticated
	}
	s.mutex.Lock()
	loaded := s.loadedFor == user.UID()
	s.mutex.Unlock()
	if loaded {
		return nil
	}
	return s.Load(ctx)
}

func (s *Store) finish(userID string, loaded *Preferences, status Status) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	// the user switched while loading
	if s.loadedFor != userID {
		return
	}
	if loaded != nil {
		s.preferences = *loaded
	}
	s.status = status
	s.emitLocked()
}

// Save writes the whole preferences object, replacing the stored document.
func (s *Store) Save(ctx context.Context) error {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return backend.ErrUnauthenticated
	}

	s.mutex.Lock()
	doc := s.preferences.document()
	s.status = Status{Saving: true}
	s.emitLocked()
	s.mutex.Unlock()

	err := s.store.SetDocument(ctx, models.PreferencesCollection, user.UID(), doc)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err != nil {
		observability.IncWriteFailure("save_preferences")
		s.sugar.Errorf("Couldn't save preferences of user %s: %v", user.UID(), err)
		s.status = Status{Error: "Couldn't save settings"}
		s.emitLocked()
		return err
	}

	s.status = Status{Saved: true}
	s.emitLocked()
	s.audit.Emit(ctx, rabbitmq.EventPreferencesSaved, user.UID(), nil)
	return nil
}

// Update applies patch to the unsaved preferences. The tier is never patched, it
// only comes from the stored document and is written back unchanged.
func (s *Store) Update(patch Patch) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if patch.Theme != nil {
		s.preferences.Theme = *patch.Theme
	}
	if patch.Background != nil {
		s.preferences.Background = *patch.Background
	}
	if patch.GradientBackground != nil {
		s.preferences.GradientBackground = *patch.GradientBackground
	}
	if patch.EmojiPack != nil {
		s.preferences.EmojiPack = *patch.EmojiPack
	}
	if patch.NotificationsEnabled != nil {
		s.preferences.NotificationsEnabled = *patch.NotificationsEnabled
	}

	s.status.Saved = false
	s.emitLocked()
}

// AddPrefix appends an empty prefix to be filled in with SetPrefix.
func (s *Store) AddPrefix() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.preferences.Prefixes) >= MaxPrefixes {
		return ErrPrefixLimit
	}
	s.preferences.Prefixes = append(s.preferences.Prefixes, "")
	s.status.Saved = false
	s.emitLocked()
	return nil
}

func (s *Store) SetPrefix(index int, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if index < 0 || index >= len(s.preferences.Prefixes) {
		return ErrPrefixIndex
	}
	s.preferences.Prefixes[index] = value
	s.status.Saved = false
	s.emitLocked()
	return nil
}

// EmojiKey is where the index-th image of an upload batch is stored. The index
// keeps same named files of one batch apart.
func EmojiKey(userID string, at time.Time, index int, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return fmt.Sprintf("emoji/%s/%d_%d_%s", userID, at.UnixMilli(), index, name)
}

// UploadEmojiImages uploads the images one by one and appends their URLs. They
// are stored with the preferences on the next Save. The first failed upload
// stops the batch.
func (s *Store) UploadEmojiImages(ctx context.Context, uploads []Upload) error {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return backend.ErrUnauthenticated
	}

	s.mutex.Lock()
	if len(s.preferences.EmojiImages)+len(uploads) > MaxEmojiImages {
		s.status = Status{Error: fmt.Sprintf("You can upload up to %d emoji images", MaxEmojiImages)}
		s.emitLocked()
		s.mutex.Unlock()
		return ErrEmojiLimit
	}
	s.status = Status{Uploading: true}
	s.emitLocked()
	s.mutex.Unlock()

	at := s.now()
	for i, upload := range uploads {
		key := EmojiKey(user.UID(), at, i, upload.Name)
		url, err := s.files.UploadFile(ctx, key, upload.ContentType, upload.Data)
		if err != nil {
			observability.IncWriteFailure("upload_emoji")
			s.sugar.Errorf("Couldn't upload emoji %s: %v", key, err)

			s.mutex.Lock()
			s.status = Status{Error: "Couldn't upload " + upload.Name}
			s.emitLocked()
			s.mutex.Unlock()
			return err
		}

		s.mutex.Lock()
		s.preferences.EmojiImages = append(s.preferences.EmojiImages, url)
		s.emitLocked()
		s.mutex.Unlock()
		s.audit.Emit(ctx, rabbitmq.EventEmojiUploaded, user.UID(), map[string]any{"key": key})
	}

	s.mutex.Lock()
	s.status = Status{}
	s.emitLocked()
	s.mutex.Unlock()
	return nil
}

func (s *Store) Preferences() Preferences {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.preferences.clone()
}

func (s *Store) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stateLocked()
}

// Reset goes back to the defaults, used when the user signs out.
func (s *Store) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.preferences = Defaults()
	s.status = Status{}
	s.loadedFor = ""
}

func (s *Store) stateLocked() State {
	return State{
		Preferences: s.preferences.clone(),
		Visible:     FieldsVisibleFor(s.preferences.Tier),
		Status:      s.status,
		CanAdd:      len(s.preferences.Prefixes) < MaxPrefixes,
		CanUpload:   max(0, MaxEmojiImages-len(s.preferences.EmojiImages)),
	}
}

func (s *Store) emitLocked() {
	s.sink.Emit(view.TypePreferences, s.stateLocked())
}
