package sessionstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/wamux/internal/event"
	"github.com/telnet2/wamux/internal/storage"
	"github.com/telnet2/wamux/pkg/types"
)

func newStore(t *testing.T, bus *event.Bus) *Store {
	t.Helper()
	return New(storage.New(t.TempDir()), bus)
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), &types.Config{
		BotName: "bot",
		Sessions: []types.SessionDescriptor{
			{Name: "s1", OwnerNumber: "221700000000", Prefix: "!", Mode: types.ModePublic, Sudo: []string{}},
			{Name: "s2", SessionID: "WAMUX-V1~abc#key", OwnerNumber: "+33 6 12 34 56 78", Sudo: []string{"221711111111"}},
		},
	}))
}

func TestLoad_MissingFileGivesDefault(t *testing.T) {
	s := newStore(t, nil)

	cfg := s.Load(context.Background())
	assert.Equal(t, types.DefaultBotName, cfg.BotName)
	assert.Empty(t, cfg.Sessions)
}

func TestLoad_CorruptFileGivesDefault(t *testing.T) {
	s := newStore(t, nil)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{oops"), 0644))

	cfg := s.Load(context.Background())
	assert.Equal(t, types.DefaultBotName, cfg.BotName)
	assert.Empty(t, cfg.Sessions)

	_, err := s.AddSudo(context.Background(), "s1", "221799999999")
	assert.ErrorIs(t, err, ErrCorruptConfig)
	data, _ := os.ReadFile(s.Path())
	assert.Equal(t, "{oops", string(data), "corrupt file must not be overwritten")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t, nil)
	seed(t, s)

	fresh := New(storage.New(s.storage.BasePath()), nil)
	cfg := fresh.Load(context.Background())

	require.Len(t, cfg.Sessions, 2)
	assert.Equal(t, "bot", cfg.BotName)
	assert.Equal(t, "s1", cfg.Sessions[0].Name)
	assert.Equal(t, "221700000000", cfg.Sessions[0].OwnerNumber)
	assert.Equal(t, "!", cfg.Sessions[0].Prefix)
	assert.Equal(t, "33612345678", cfg.Sessions[1].OwnerNumber)
	assert.Equal(t, []string{"221711111111"}, cfg.Sessions[1].Sudo)
}

func TestSave_RejectsInvalid(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	err := s.Save(ctx, &types.Config{Sessions: []types.SessionDescriptor{{Name: "a", OwnerNumber: "1"}, {Name: "a", OwnerNumber: "2"}}})
	assert.ErrorIs(t, err, ErrSessionExists)

	err = s.Save(ctx, &types.Config{Sessions: []types.SessionDescriptor{{Name: "a"}}})
	assert.ErrorIs(t, err, ErrInvalidNumber)

	err = s.Save(ctx, &types.Config{Sessions: []types.SessionDescriptor{{Name: "a b", OwnerNumber: "1"}}})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestFinders(t *testing.T) {
	s := newStore(t, nil)
	seed(t, s)
	ctx := context.Background()

	d, ok := s.FindBySessionID(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, "s1", d.Name)

	d, ok = s.FindBySessionID(ctx, "WAMUX-V1~abc#key")
	require.True(t, ok)
	assert.Equal(t, "s2", d.Name)

	d, ok = s.FindByOwnerOrSudo(ctx, "+221 70 000 00 00")
	require.True(t, ok)
	assert.Equal(t, "s1", d.Name)

	d, ok = s.FindByOwnerOrSudo(ctx, "221711111111@s.whatsapp.net")
	require.True(t, ok)
	assert.Equal(t, "s2", d.Name)

	_, ok = s.FindByOwnerOrSudo(ctx, "")
	assert.False(t, ok)
	_, ok = s.FindByName(ctx, "nope")
	assert.False(t, ok)
}

func TestAddSudo_Idempotent(t *testing.T) {
	s := newStore(t, nil)
	seed(t, s)
	ctx := context.Background()

	added, err := s.AddSudo(ctx, "s1", "+221 799 999 999")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddSudo(ctx, "s1", "221799999999")
	require.NoError(t, err)
	assert.False(t, added)

	d, _ := s.FindByName(ctx, "s1")
	assert.Equal(t, []string{"221799999999"}, d.Sudo)
}

func TestAddSudo_OwnerIsNoop(t *testing.T) {
	s := newStore(t, nil)
	seed(t, s)
	ctx := context.Background()

	added, err := s.AddSudo(ctx, "s1", "221-700-000-000")
	require.NoError(t, err)
	assert.False(t, added)

	d, _ := s.FindByName(ctx, "s1")
	assert.Empty(t, d.Sudo)
}

func TestAddSudo_Validation(t *testing.T) {
	s := newStore(t, nil)
	seed(t, s)
	ctx := context.Background()

	_, err := s.AddSudo(ctx, "s1", "0221700000")
	assert.ErrorIs(t, err, ErrInvalidNumber)
	_, err = s.AddSudo(ctx, "s1", "1234")
	assert.ErrorIs(t, err, ErrInvalidNumber)
	_, err = s.AddSudo(ctx, "missing", "221799999999")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRemoveSudo(t *testing.T) {
	s := newStore(t, nil)
	seed(t, s)
	ctx := context.Background()

	removed, err := s.RemoveSudo(ctx, "s2", "221711111111")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveSudo(ctx, "s2", "221711111111")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSudo_FormattedEntryOnDisk(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{
		"BOT_NAME": "bot",
		"sessions": [{"name": "s1", "ownerNumber": "221700000000", "sudo": ["+221 711 111 111"]}]
	}`), 0644))

	added, err := s.AddSudo(ctx, "s1", "221711111111")
	require.NoError(t, err)
	assert.False(t, added)
	d, ok := s.FindByName(ctx, "s1")
	require.True(t, ok)
	assert.Len(t, d.Sudo, 1)

	removed, err := s.RemoveSudo(ctx, "s1", "221711111111")
	require.NoError(t, err)
	assert.True(t, removed)
	d, _ = s.FindByName(ctx, "s1")
	assert.Empty(t, d.Sudo)

	fresh := New(storage.New(s.storage.BasePath()), nil)
	assert.Empty(t, fresh.Load(ctx).Sessions[0].Sudo)
}

func TestSetPrefixAndMode(t *testing.T) {
	s := newStore(t, nil)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.SetPrefix(ctx, "s1", "."))
	require.NoError(t, s.SetMode(ctx, "s1", types.ModePrivate))

	d, _ := s.FindByName(ctx, "s1")
	assert.Equal(t, ".", d.Prefix)
	assert.Equal(t, types.ModePrivate, d.Mode)

	assert.ErrorIs(t, s.SetPrefix(ctx, "s1", "abcd"), ErrInvalidPrefix)
	assert.ErrorIs(t, s.SetPrefix(ctx, "s1", " "), ErrInvalidPrefix)
	assert.ErrorIs(t, s.SetMode(ctx, "s1", "secret"), ErrInvalidMode)
}

func TestUpsertAndRemove(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	changes := make(chan event.ConfigChangedData, 4)
	bus.Subscribe(event.ConfigChanged, func(e event.Event) {
		changes <- e.Data.(event.ConfigChangedData)
	})

	s := newStore(t, bus)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, types.SessionDescriptor{Name: "s3", OwnerNumber: "221733333333", Sudo: []string{"221733333333"}}))
	select {
	case c := <-changes:
		assert.Equal(t, []string{"s3"}, c.Added)
	case <-time.After(time.Second):
		t.Fatal("no ConfigChanged for upsert")
	}

	d, ok := s.FindByName(ctx, "s3")
	require.True(t, ok)
	assert.Empty(t, d.Sudo, "owner is dropped from sudo")

	removed, err := s.Remove(ctx, "s3")
	require.NoError(t, err)
	assert.True(t, removed)
	select {
	case c := <-changes:
		assert.Equal(t, []string{"s3"}, c.Removed)
	case <-time.After(time.Second):
		t.Fatal("no ConfigChanged for remove")
	}

	removed, err = s.Remove(ctx, "s3")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDiff(t *testing.T) {
	prev := &types.Config{Sessions: []types.SessionDescriptor{{Name: "a"}, {Name: "b"}}}
	next := &types.Config{Sessions: []types.SessionDescriptor{{Name: "b", Prefix: "."}, {Name: "c"}}}

	added, removed := Diff(prev, next)
	assert.Equal(t, []string{"c"}, added)
	assert.Equal(t, []string{"a"}, removed)
}

func TestValidatePrefix(t *testing.T) {
	for _, p := range []string{"!", ".", "#", "ab", "$$$", "\\", "`"} {
		assert.NoError(t, ValidatePrefix(p), p)
	}
	for _, p := range []string{"", "abcd", " ", "é"} {
		assert.Error(t, ValidatePrefix(p), p)
	}
}
