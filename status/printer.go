// Package status renders what a session is doing as lines of text, using a
// user supplied text/template.
package status

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vsariola/beatbox"
)

type (
	// Printer is a bus listener executing a template for every command of
	// the selected kinds and writing the result to its writer, one line per
	// command. It tracks the position from the timing updates it sees, so
	// a template printing on beats can still show the bar.
	Printer struct {
		mu    sync.Mutex
		w     io.Writer
		tmpl  *template.Template
		kinds map[beatbox.CommandKind]bool
		pos   beatbox.Position
		state beatbox.TransportState
		buf   bytes.Buffer
	}

	// View is the data given to the template.
	View struct {
		Kind    string
		Time    time.Time
		State   string
		Timing  string // the fields carried by a timing update, e.g. "beat=1 beats=5"
		Player  *beatbox.Player
		Rule    *beatbox.Rule
		Session *beatbox.SessionConfig
		beatbox.Position
	}
)

// DefaultTemplate prints the bar and beat on every beat and a short line for
// everything that is not timing.
const DefaultTemplate = `{{if eq .Kind "beat advanced"}}{{printf "%3d.%d" (add1 .Bar) (add1 .Beat)}}` +
	`{{else}}{{title .Kind}}{{with .Player}} {{.Name | default (printf "#%d" .ID)}}{{end}}` +
	`{{with .Rule}} {{.}}{{end}}{{with .Session}} {{.BPM}} bpm{{end}}{{end}}`

// DefaultKinds are the commands printed when none are given.
var DefaultKinds = []beatbox.CommandKind{
	beatbox.CommandBeatAdvanced,
	beatbox.CommandTransportStarted,
	beatbox.CommandTransportPaused,
	beatbox.CommandTransportStopped,
	beatbox.CommandTransportReset,
	beatbox.CommandPlayerAdded,
	beatbox.CommandPlayerRemoved,
	beatbox.CommandPlayerUpdated,
	beatbox.CommandRuleAdded,
	beatbox.CommandRuleRemoved,
	beatbox.CommandSessionUpdated,
}

// FuncMap returns the functions available to templates: sprig's text
// functions and title, which title cases English text.
func FuncMap() template.FuncMap {
	caser := cases.Title(language.English)
	funcs := sprig.TxtFuncMap()
	funcs["title"] = caser.String
	return funcs
}

// New parses text and returns a Printer for the given kinds, or
// DefaultKinds if there are none. An empty text uses DefaultTemplate.
func New(w io.Writer, text string, kinds ...beatbox.CommandKind) (*Printer, error) {
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("status").Funcs(FuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("could not parse status template: %w", err)
	}
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	p := &Printer{w: w, tmpl: tmpl, kinds: make(map[beatbox.CommandKind]bool, len(kinds))}
	for _, k := range kinds {
		p.kinds[k] = true
	}
	return p, nil
}

func (p *Printer) OnCommand(cmd beatbox.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	view := View{Kind: cmd.Kind.String(), Time: cmd.Time}
	switch d := cmd.Data.(type) {
	case beatbox.TimingUpdate:
		p.pos = d.Apply(p.pos)
		view.Timing = d.String()
	case beatbox.TransportEvent:
		p.pos, p.state = d.Position, d.State
	case beatbox.PlayerEvent:
		view.Player = &d.Player
	case beatbox.RuleEvent:
		view.Rule = &d.Rule
	case beatbox.SessionEvent:
		view.Session = &d.Config
	}
	if !p.kinds[cmd.Kind] {
		return nil
	}
	view.Position = p.pos
	view.State = p.state.String()
	p.buf.Reset()
	if err := p.tmpl.Execute(&p.buf, view); err != nil {
		return fmt.Errorf("status template failed: %w", err)
	}
	if p.buf.Len() == 0 {
		return nil
	}
	p.buf.WriteByte('\n')
	_, err := p.w.Write(p.buf.Bytes())
	return err
}
