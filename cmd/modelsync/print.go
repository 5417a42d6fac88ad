package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/modelsync/modelsync"
	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
)

type palette struct {
	typ   func(a ...any) string
	id    func(a ...any) string
	kind  func(a ...any) string
	faint func(a ...any) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		typ:   mk(color.FgCyan, color.Bold),
		id:    mk(color.FgYellow),
		kind:  mk(color.FgGreen),
		faint: mk(color.Faint),
	}
}

func (a *app) describe(m *models.Model) string {
	s := fmt.Sprintf("%s(%s)", a.palette.typ(m.Type()), a.palette.id(m.ID()))
	if name := m.Name(); name != "" {
		s += fmt.Sprintf(" %q", name)
	}
	return s
}

func (a *app) printDocument(d *modelsync.Document) {
	fmt.Fprintf(a.out, "title: %s\n", d.Title())
	fmt.Fprintf(a.out, "roots: %d\n", len(d.Roots()))
	for _, r := range d.Roots() {
		fmt.Fprintf(a.out, "  %s\n", a.describe(r))
	}

	counts := make(map[string]int)
	all := d.AllModels()
	for _, m := range all {
		counts[m.Type()]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	fmt.Fprintf(a.out, "models: %d\n", len(all))
	for _, t := range types {
		fmt.Fprintf(a.out, "  %s %d\n", a.palette.typ(t), counts[t])
	}
}

func (a *app) printPatch(p *modelsync.Patch) {
	for _, ev := range p.Events {
		fmt.Fprintf(a.out, "%s %s\n", a.palette.kind(ev.Kind), a.eventDetail(ev))
	}
	if len(p.References) > 0 {
		fmt.Fprintf(a.out, "%s\n", a.palette.faint(fmt.Sprintf("%d new models", len(p.References))))
	}
}

func (a *app) eventDetail(ev modelsync.EventJSON) string {
	ref := func(r *models.Ref) string {
		if r == nil {
			return ""
		}
		return a.palette.id(r.ID)
	}
	value := func(v *models.Value) string {
		if v == nil {
			return "null"
		}
		return v.String()
	}
	switch ev.Kind {
	case constants.KindModelChanged:
		return fmt.Sprintf("%s.%s = %s", ref(ev.Model), ev.Attr, value(ev.New))
	case constants.KindRootAdded, constants.KindRootRemoved:
		return ref(ev.Model)
	case constants.KindTitleChanged:
		if ev.Title == nil {
			return ""
		}
		return fmt.Sprintf("%q", *ev.Title)
	case constants.KindColumnsStreamed:
		return fmt.Sprintf("%s rollover=%s", ref(ev.ColumnSource), value(ev.Rollover))
	case constants.KindColumnsPatched:
		return ref(ev.ColumnSource)
	}
	return ""
}
