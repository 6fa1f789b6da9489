package ledger

import (
	"strings"
	"time"

	"github.com/username/tradefolio/src/utils"
)

// Page is one row of the document database, a bag of typed properties.
// The core never touches Properties directly; it goes through the typed
// accessors below or the RecordStore mapping.
type Page struct {
	ID         string              `json:"id"`
	Archived   bool                `json:"archived"`
	Properties map[string]Property `json:"properties"`
}

// Property is the wire shape of a single page property. Exactly one of the
// value fields is populated depending on Type.
type Property struct {
	Type        string         `json:"type,omitempty"`
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Number      *float64       `json:"number,omitempty"`
	Select      *SelectOption  `json:"select,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
	Date        *DateValue     `json:"date,omitempty"`
}

type RichText struct {
	PlainText string       `json:"plain_text,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
}

type TextContent struct {
	Content string `json:"content"`
}

type SelectOption struct {
	Name string `json:"name"`
}

type DateValue struct {
	Start string `json:"start"`
}

// TitleText returns the joined plain-text runs of a title property.
func (p *Page) TitleText(name string) string {
	prop, ok := p.Properties[name]
	if !ok {
		return ""
	}
	return joinRuns(prop.Title)
}

// Text returns the joined plain-text runs of a rich-text property.
func (p *Page) Text(name string) string {
	prop, ok := p.Properties[name]
	if !ok {
		return ""
	}
	return joinRuns(prop.RichText)
}

// NumberValue returns a number property, 0 when absent.
func (p *Page) NumberValue(name string) float64 {
	prop, ok := p.Properties[name]
	if !ok || prop.Number == nil {
		return 0
	}
	return *prop.Number
}

// SelectName returns the selected option name, "" when absent.
func (p *Page) SelectName(name string) string {
	prop, ok := p.Properties[name]
	if !ok || prop.Select == nil {
		return ""
	}
	return prop.Select.Name
}

// MultiSelectNames returns the selected option names in order.
func (p *Page) MultiSelectNames(name string) []string {
	prop, ok := p.Properties[name]
	if !ok {
		return nil
	}
	var names []string
	for _, opt := range prop.MultiSelect {
		names = append(names, opt.Name)
	}
	return names
}

// DateValueStart returns the ISO start of a date property as a time,
// zero when absent or malformed. A full timestamp start is accepted and
// truncated to the date.
func (p *Page) DateValueStart(name string) time.Time {
	prop, ok := p.Properties[name]
	if !ok || prop.Date == nil || prop.Date.Start == "" {
		return time.Time{}
	}
	start := prop.Date.Start
	if len(start) > len(utils.ISODateFormat) {
		start = start[:len(utils.ISODateFormat)]
	}
	t, err := time.Parse(utils.ISODateFormat, start)
	if err != nil {
		return time.Time{}
	}
	return t
}

func joinRuns(runs []RichText) string {
	var b strings.Builder
	for _, r := range runs {
		if r.PlainText != "" {
			b.WriteString(r.PlainText)
		} else if r.Text != nil {
			b.WriteString(r.Text.Content)
		}
	}
	return b.String()
}

// Property constructors used when writing pages.

func TitleProp(text string) Property {
	return Property{Title: []RichText{{Text: &TextContent{Content: text}, PlainText: text}}}
}

func TextProp(text string) Property {
	if text == "" {
		return Property{RichText: []RichText{}}
	}
	return Property{RichText: []RichText{{Text: &TextContent{Content: text}, PlainText: text}}}
}

func NumberProp(v float64) Property {
	return Property{Number: &v}
}

func SelectProp(name string) Property {
	if name == "" {
		return Property{}
	}
	return Property{Select: &SelectOption{Name: name}}
}

func MultiSelectProp(names []string) Property {
	opts := make([]SelectOption, 0, len(names))
	for _, n := range names {
		opts = append(opts, SelectOption{Name: n})
	}
	return Property{MultiSelect: opts}
}

func DateProp(t time.Time) Property {
	if t.IsZero() {
		return Property{}
	}
	return Property{Date: &DateValue{Start: utils.FormatISODate(t)}}
}
