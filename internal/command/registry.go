package command

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/internal/permission"
)

// Command sources.
const (
	SourceBuiltin = "builtin"
	SourceFile    = "file"
)

// maxSuggestDistance bounds the edit distance for "did you mean" hints.
const maxSuggestDistance = 2

// Command describes a registered command.
type Command struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Run         Handler  `json:"-"`

	permission.Requirements

	// Source is SourceBuiltin or SourceFile; Path is the manifest path for files.
	Source string `json:"source"`
	Path   string `json:"path,omitempty"`
}

// LoadResult summarizes one load pass.
type LoadResult struct {
	Count   int `json:"count"`
	Skipped int `json:"skipped"`
}

// table is an immutable snapshot of the registry.
type table struct {
	byName   map[string]*Command
	commands []*Command
}

// Registry maps command names to descriptors. It is safe for concurrent use.
type Registry struct {
	dir      string
	builtins []*Command
	handlers map[string]Handler
	log      zerolog.Logger

	reloadMu sync.Mutex
	current  atomic.Pointer[table]
}

// NewRegistry creates a registry with the given built-ins and manifest
// directory. dir may be empty. The registry holds only the built-ins until
// Load is called.
func NewRegistry(dir string, builtins ...*Command) *Registry {
	r := &Registry{
		dir:      dir,
		handlers: make(map[string]Handler),
		log:      logging.Component("command"),
	}
	for _, c := range builtins {
		if c == nil || c.Run == nil || strings.TrimSpace(c.Name) == "" {
			continue
		}
		cp := *c
		cp.Name = normalize(c.Name)
		cp.Source = SourceBuiltin
		r.builtins = append(r.builtins, &cp)
		r.handlers[cp.Name] = cp.Run
	}
	r.current.Store(r.build(nil))
	return r
}

// Dir returns the manifest directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Load registers the built-ins and every manifest found in the directory.
// Malformed manifests are logged and skipped.
func (r *Registry) Load() LoadResult {
	return r.Reload()
}

// Reload rebuilds the table from scratch and swaps it in atomically.
func (r *Registry) Reload() LoadResult {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	manifests, skipped := r.loadManifests()
	t := r.build(manifests)
	r.current.Store(t)

	res := LoadResult{Count: len(t.commands), Skipped: skipped}
	r.log.Info().Int("count", res.Count).Int("skipped", res.Skipped).Str("dir", r.dir).Msg("commands loaded")
	return res
}

// build registers built-ins first, then manifests in load order; later
// registrations win.
func (r *Registry) build(manifests []*Command) *table {
	byName := make(map[string]*Command)
	primary := make(map[string]*Command)

	register := func(c *Command) {
		if prev, ok := primary[c.Name]; ok {
			r.log.Debug().Str("command", c.Name).Str("previous", prev.Source+":"+prev.Path).
				Str("source", c.Source+":"+c.Path).Msg("command overridden")
		}
		primary[c.Name] = c
		byName[c.Name] = c
		for _, a := range c.Aliases {
			if a = normalize(a); a != "" {
				if _, taken := primary[a]; !taken {
					byName[a] = c
				}
			}
		}
	}
	for _, c := range r.builtins {
		register(c)
	}
	for _, c := range manifests {
		register(c)
	}

	// An override can orphan aliases that pointed at the replaced descriptor.
	for name, c := range byName {
		if primary[c.Name] != c {
			delete(byName, name)
		}
	}

	commands := make([]*Command, 0, len(primary))
	for _, c := range primary {
		commands = append(commands, c)
	}
	slices.SortFunc(commands, func(a, b *Command) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name))
	})
	return &table{byName: byName, commands: commands}
}

// Get looks up a command by name or alias, ignoring case.
func (r *Registry) Get(name string) (*Command, bool) {
	c, ok := r.current.Load().byName[normalize(name)]
	return c, ok
}

// List returns every command sorted by category, then name.
func (r *Registry) List() []*Command {
	return slices.Clone(r.current.Load().commands)
}

// Len returns the number of registered commands, aliases excluded.
func (r *Registry) Len() int {
	return len(r.current.Load().commands)
}

// Handler returns the built-in handler bindable under name.
func (r *Registry) Handler(name string) (Handler, bool) {
	h, ok := r.handlers[normalize(name)]
	return h, ok
}

// Suggest returns the registered name closest to name, or "" when nothing is
// within a small edit distance.
func (r *Registry) Suggest(name string) string {
	name = normalize(name)
	if name == "" {
		return ""
	}
	t := r.current.Load()
	best, bestDist := "", maxSuggestDistance+1
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		if d := levenshtein.ComputeDistance(name, n); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
