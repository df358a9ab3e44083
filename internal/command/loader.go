package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/telnet2/wamux/internal/permission"
)

// ManifestPattern selects manifest files under the commands directory.
const ManifestPattern = "**/*.md"

var (
	errNoName         = errors.New("manifest has no name")
	errNoBody         = errors.New("manifest has neither handler nor body")
	errUnknownHandler = errors.New("unknown handler")
)

// manifest is the YAML frontmatter of a command file.
type manifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Aliases     []string `yaml:"aliases"`
	Handler     string   `yaml:"handler"`

	permission.Requirements `yaml:",inline"`
}

// loadManifests reads every manifest in lexical path order.
func (r *Registry) loadManifests() ([]*Command, int) {
	if r.dir == "" {
		return nil, 0
	}
	if _, err := os.Stat(r.dir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn().Err(err).Str("dir", r.dir).Msg("commands directory unreadable")
		}
		return nil, 0
	}

	matches, err := doublestar.Glob(os.DirFS(r.dir), ManifestPattern)
	if err != nil {
		r.log.Warn().Err(err).Str("dir", r.dir).Msg("failed to list command manifests")
		return nil, 0
	}
	slices.Sort(matches)

	var cmds []*Command
	skipped := 0
	for _, rel := range matches {
		path := filepath.Join(r.dir, filepath.FromSlash(rel))
		cmd, err := r.parseManifest(path)
		if err != nil {
			skipped++
			r.log.Warn().Err(err).Str("path", path).Msg("skipping command manifest")
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, skipped
}

// parseManifest parses one manifest file into a command.
func (r *Registry) parseManifest(path string) (*Command, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	front, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := yaml.Unmarshal(front, &m); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	m.Name = normalize(m.Name)
	if m.Name == "" || strings.ContainsAny(m.Name, " \t\n") {
		return nil, errNoName
	}

	cmd := &Command{
		Name:         m.Name,
		Description:  m.Description,
		Category:     m.Category,
		Aliases:      m.Aliases,
		Requirements: m.Requirements,
		Source:       SourceFile,
		Path:         path,
	}

	if m.Handler != "" {
		h, ok := r.Handler(m.Handler)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownHandler, m.Handler)
		}
		cmd.Run = h
		return cmd, nil
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errNoBody
	}
	tmpl, err := template.New(m.Name).Funcs(templateFuncs()).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	cmd.Run = templateHandler(tmpl)
	return cmd, nil
}

// splitFrontmatter separates the leading "---" delimited block from the body.
// A file without frontmatter has no name and is rejected.
func splitFrontmatter(content []byte) ([]byte, string, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return nil, "", errNoName
	}
	rest := text[len("---\n"):]

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, "", errors.New("unterminated frontmatter")
	}
	front := rest[:end]
	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return []byte(front), body, nil
}

// TemplateData is the data a manifest body is rendered with.
type TemplateData struct {
	Args     []string
	Input    string
	Command  string
	Prefix   string
	Mode     string
	BotName  string
	Session  string
	Sender   string
	Number   string
	PushName string
	ChatType string
	IsGroup  bool
	IsOwner  bool
	IsSudo   bool
	IsAdmin  bool
	Group    struct {
		Subject string
		Size    int
	}
}

func newTemplateData(inv *Invocation) TemplateData {
	c := inv.Context
	d := TemplateData{
		Args:     inv.Args,
		Input:    inv.Input(),
		Command:  inv.Name,
		Prefix:   c.Session.EffectivePrefix(),
		Mode:     c.Session.EffectiveMode(),
		BotName:  c.BotName,
		Session:  c.SessionName,
		Sender:   c.Sender,
		Number:   c.SenderNumber,
		PushName: inv.Message.PushName,
		ChatType: string(c.ChatType),
		IsGroup:  c.IsGroup,
		IsOwner:  c.Permissions.IsOwner,
		IsSudo:   c.Permissions.IsSudo,
		IsAdmin:  c.Permissions.IsAdmin,
	}
	if c.Group != nil {
		d.Group.Subject = c.Group.Subject
		d.Group.Size = len(c.Group.Participants)
	}
	return d
}

func templateHandler(tmpl *template.Template) Handler {
	return func(ctx context.Context, inv *Invocation) error {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, newTemplateData(inv)); err != nil {
			return fmt.Errorf("render %s: %w", tmpl.Name(), err)
		}
		text := strings.TrimSpace(buf.String())
		if text == "" {
			return nil
		}
		return inv.Reply(ctx, text)
	}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"default": func(defaultVal, val string) string {
			if val == "" {
				return defaultVal
			}
			return val
		},
		"arg": func(args []string, i int) string {
			if i < 0 || i >= len(args) {
				return ""
			}
			return args[i]
		},
		"trim":    strings.TrimSpace,
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"replace": strings.ReplaceAll,
		"split":   strings.Split,
		"join":    strings.Join,
	}
}
