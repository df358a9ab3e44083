package command

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/wamux/internal/event"
	"github.com/telnet2/wamux/internal/transport/transporttest"
	"github.com/telnet2/wamux/pkg/types"
)

func noop(ctx context.Context, inv *Invocation) error { return nil }

func writeManifest(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newInvocation(client *transporttest.Client, args ...string) *Invocation {
	return &Invocation{
		Client: client,
		Message: &types.Message{
			ID:       "MSG1",
			Chat:     "221799999999@s.whatsapp.net",
			Sender:   "221799999999@s.whatsapp.net",
			PushName: "Awa",
		},
		Name: "hello",
		Args: args,
		Context: &Context{
			SessionName:  "s1",
			Session:      types.SessionDescriptor{Name: "s1", OwnerNumber: "221700000000"},
			BotName:      "wamux",
			ChatType:     types.ChatDirect,
			Sender:       "221799999999@s.whatsapp.net",
			SenderNumber: "221799999999",
		},
	}
}

func TestRegistry_BuiltinsOnly(t *testing.T) {
	r := NewRegistry("", &Command{Name: "Menu", Category: "general", Run: noop}, &Command{Name: "", Run: noop}, nil)

	cmd, ok := r.Get("MENU")
	require.True(t, ok)
	assert.Equal(t, "menu", cmd.Name)
	assert.Equal(t, SourceBuiltin, cmd.Source)
	assert.Equal(t, 1, r.Len())

	res := r.Load()
	assert.Equal(t, LoadResult{Count: 1}, res)
}

func TestRegistry_LoadManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "hello.md", `---
name: Hello
description: Say hello
category: fun
aliases: [hi, salut]
---
Hello {{.PushName}} on {{.Session}}, args={{join .Args ","}}
`)
	writeManifest(t, dir, "admin/kick.md", `---
name: kick
handler: menu
groupOnly: true
adminOnly: true
botAdminOnly: true
---
`)
	writeManifest(t, dir, "notes.txt", "ignored")

	r := NewRegistry(dir, &Command{Name: "menu", Run: noop})
	res := r.Load()
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 0, res.Skipped)

	hello, ok := r.Get("SALUT")
	require.True(t, ok)
	assert.Equal(t, "hello", hello.Name)
	assert.Equal(t, SourceFile, hello.Source)
	assert.Equal(t, "fun", hello.Category)

	kick, ok := r.Get("kick")
	require.True(t, ok)
	assert.True(t, kick.GroupOnly)
	assert.True(t, kick.AdminOnly)
	assert.True(t, kick.BotAdminOnly)
	assert.False(t, kick.OwnerOnly)
	assert.NotNil(t, kick.Run)

	client := transporttest.NewClient("s1", "")
	require.NoError(t, hello.Run(context.Background(), newInvocation(client, "a", "b")))
	assert.Equal(t, []string{"Hello Awa on s1, args=a,b"}, client.Texts())
	sent := client.Sent()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].Payload.Quote)
	assert.Equal(t, "MSG1", sent[0].Payload.Quote.ID)
}

func TestRegistry_MalformedManifestsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a-noname.md", "---\ndescription: x\n---\nbody\n")
	writeManifest(t, dir, "b-badyaml.md", "---\nname: [oops\n---\nbody\n")
	writeManifest(t, dir, "c-nohandler.md", "---\nname: ghost\nhandler: missing\n---\n")
	writeManifest(t, dir, "d-badtemplate.md", "---\nname: broken\n---\n{{ .Nope \n")
	writeManifest(t, dir, "e-nofront.md", "just text\n")
	writeManifest(t, dir, "f-empty.md", "---\nname: empty\n---\n")
	writeManifest(t, dir, "g-good.md", "---\nname: good\n---\nok\n")

	r := NewRegistry(dir)
	res := r.Load()

	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 6, res.Skipped)
	_, ok := r.Get("good")
	assert.True(t, ok)
	_, ok = r.Get("ghost")
	assert.False(t, ok)
}

func TestRegistry_LastLoadedWins(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a.md", "---\nname: dup\ndescription: first\naliases: [d1]\n---\none\n")
	writeManifest(t, dir, "b.md", "---\nname: dup\ndescription: second\n---\ntwo\n")
	writeManifest(t, dir, "c.md", "---\nname: menu\ndescription: file menu\n---\nfile\n")

	r := NewRegistry(dir, &Command{Name: "menu", Description: "builtin", Run: noop})
	r.Load()

	dup, ok := r.Get("dup")
	require.True(t, ok)
	assert.Equal(t, "second", dup.Description)

	// The alias belonged to the overridden descriptor.
	_, ok = r.Get("d1")
	assert.False(t, ok)

	menu, _ := r.Get("menu")
	assert.Equal(t, "file menu", menu.Description)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ReloadSwapsTable(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "one.md", "---\nname: one\n---\n1\n")

	r := NewRegistry(dir)
	r.Load()
	before := r.List()
	require.Len(t, before, 1)

	writeManifest(t, dir, "two.md", "---\nname: two\n---\n2\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "one.md")))
	r.Reload()

	assert.Len(t, before, 1, "earlier snapshots are not mutated")
	_, ok := r.Get("one")
	assert.False(t, ok)
	_, ok = r.Get("two")
	assert.True(t, ok)
}

func TestRegistry_ConcurrentReadsDuringReload(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "stable.md", "---\nname: stable\n---\nok\n")
	r := NewRegistry(dir)
	r.Load()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, ok := r.Get("stable")
					assert.True(t, ok)
					_ = r.List()
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		r.Reload()
	}
	close(stop)
	wg.Wait()
}

func TestRegistry_Suggest(t *testing.T) {
	r := NewRegistry("",
		&Command{Name: "menu", Run: noop},
		&Command{Name: "mode", Run: noop},
		&Command{Name: "ping", Run: noop},
	)

	assert.Equal(t, "menu", r.Suggest("mneu"))
	assert.Equal(t, "ping", r.Suggest("pong"))
	assert.Equal(t, "", r.Suggest("foobar"))
	assert.Equal(t, "", r.Suggest(""))
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry("",
		&Command{Name: "ping", Category: "general", Run: noop},
		&Command{Name: "mode", Category: "owner", Run: noop},
		&Command{Name: "menu", Category: "general", Run: noop},
	)

	var names []string
	for _, c := range r.List() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"menu", "ping", "mode"}, names)
}

func TestTemplateHandler_EmptyOutputSendsNothing(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "quiet.md", "---\nname: quiet\n---\n{{if .IsOwner}}secret{{end}}\n")
	r := NewRegistry(dir)
	r.Load()

	cmd, ok := r.Get("quiet")
	require.True(t, ok)
	client := transporttest.NewClient("s1", "")
	require.NoError(t, cmd.Run(context.Background(), newInvocation(client)))
	assert.Empty(t, client.Sent())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	r.Load()

	bus := event.NewBus()
	defer bus.Close()
	reloaded := make(chan event.CommandsReloadedData, 4)
	bus.Subscribe(event.CommandsReloaded, func(e event.Event) {
		reloaded <- e.Data.(event.CommandsReloadedData)
	})

	w, err := NewWatcher(r, bus)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	w.Start()
	defer w.Stop()

	writeManifest(t, dir, "late.md", "---\nname: late\n---\nhi\n")

	assert.Eventually(t, func() bool {
		_, ok := r.Get("late")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}
}
