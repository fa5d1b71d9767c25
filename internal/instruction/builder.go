// Package instruction renders the natural-language task handed to the
// browser agent.
package instruction

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/ashureev/outreach-agent/internal/config"
	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/ashureev/outreach-agent/internal/filter"
)

// LoginRequiredMarker is the line the agent prints when a supposedly
// fresh session turns out to need a login.
const LoginRequiredMarker = "LOGIN REQUIRED"

// DefaultReplyVariants are the thank-you replies the agent picks from.
var DefaultReplyVariants = []string{
	"Thanks so much!",
	"Appreciate the birthday wishes!",
	"Thank you!",
	"Thanks for thinking of me!",
}

// DefaultWishVariants are the birthday wishes the agent picks from.
// {first_name} is replaced by the agent.
var DefaultWishVariants = []string{
	"Happy birthday, {first_name}! Wishing you a great year ahead.",
	"Happy birthday {first_name}! Hope you have a wonderful day.",
	"Many happy returns, {first_name}!",
}

// State is everything about the current run that shapes an instruction.
type State struct {
	LoggedIn bool
	DryRun   bool
	Filter   filter.Snapshot
}

// Options configures a Builder.
type Options struct {
	Credentials   config.Credentials
	GitHubURL     string
	MaxItems      int
	ReplyVariants []string
	WishVariants  []string
}

// Builder renders instructions. Output is deterministic for equal input.
type Builder struct {
	opts Options
	tmpl *template.Template
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	if opts.MaxItems <= 0 {
		opts.MaxItems = 15
	}
	if len(opts.ReplyVariants) == 0 {
		opts.ReplyVariants = DefaultReplyVariants
	}
	if len(opts.WishVariants) == 0 {
		opts.WishVariants = DefaultWishVariants
	}
	funcs := template.FuncMap{
		"list":  renderList,
		"quote": quoteAll,
	}
	return &Builder{
		opts: opts,
		tmpl: template.Must(template.New("instruction").Funcs(funcs).Parse(instructionTemplate)),
	}
}

type templateData struct {
	Kind          string
	LoggedIn      bool
	DryRun        bool
	Username      string
	Password      string
	GitHubURL     string
	MaxItems      int
	Filter        filter.Snapshot
	ReplyVariants []string
	WishVariants  []string
	LoginMarker   string
}

// Build renders the instruction for kind.
func (b *Builder) Build(kind domain.TaskKind, st State) (string, error) {
	switch kind {
	case domain.TaskReply, domain.TaskBirthdayWish, domain.TaskFollowerCheck:
	default:
		return "", fmt.Errorf("build instruction: unknown task kind %q", kind)
	}
	if kind == domain.TaskFollowerCheck && b.opts.GitHubURL == "" {
		return "", fmt.Errorf("build instruction: follower check needs a profile URL")
	}

	data := templateData{
		Kind:          string(kind),
		LoggedIn:      st.LoggedIn,
		DryRun:        st.DryRun,
		Username:      b.opts.Credentials.Username,
		Password:      b.opts.Credentials.Password,
		GitHubURL:     b.opts.GitHubURL,
		MaxItems:      b.opts.MaxItems,
		Filter:        st.Filter,
		ReplyVariants: b.opts.ReplyVariants,
		WishVariants:  b.opts.WishVariants,
		LoginMarker:   LoginRequiredMarker,
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func renderList(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func quoteAll(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
