package ledger

import (
	"testing"
	"time"
)

func TestPageAccessors(t *testing.T) {
	qty := 2.0
	page := &Page{
		ID: "page1",
		Properties: map[string]Property{
			"Ticker": {Title: []RichText{{PlainText: "NF"}, {PlainText: "LX"}}},
			"Contract Key": {RichText: []RichText{
				{Text: &TextContent{Content: "NFLX 260417C00082000"}},
			}},
			"Qty":       {Number: &qty},
			"Broker":    {Select: &SelectOption{Name: "SnapTrade"}},
			"Tags":      {MultiSelect: []SelectOption{{Name: "earnings"}, {Name: "hedge"}}},
			"Open Date": {Date: &DateValue{Start: "2026-04-17"}},
		},
	}

	if got := page.TitleText("Ticker"); got != "NFLX" {
		t.Errorf("TitleText = %q, want NFLX", got)
	}
	if got := page.Text("Contract Key"); got != "NFLX 260417C00082000" {
		t.Errorf("Text = %q", got)
	}
	if got := page.NumberValue("Qty"); got != 2 {
		t.Errorf("NumberValue = %v, want 2", got)
	}
	if got := page.SelectName("Broker"); got != "SnapTrade" {
		t.Errorf("SelectName = %q", got)
	}
	if got := page.MultiSelectNames("Tags"); len(got) != 2 || got[0] != "earnings" {
		t.Errorf("MultiSelectNames = %v", got)
	}
	want := time.Date(2026, time.April, 17, 0, 0, 0, 0, time.UTC)
	if got := page.DateValueStart("Open Date"); !got.Equal(want) {
		t.Errorf("DateValueStart = %v, want %v", got, want)
	}
}

func TestPageAccessorsAbsent(t *testing.T) {
	page := &Page{Properties: map[string]Property{}}
	if page.TitleText("Ticker") != "" || page.Text("Account") != "" ||
		page.NumberValue("Qty") != 0 || page.SelectName("Status") != "" {
		t.Error("absent properties must yield zero values")
	}
	if !page.DateValueStart("Open Date").IsZero() {
		t.Error("absent date must be zero time")
	}
	if page.MultiSelectNames("Tags") != nil {
		t.Error("absent multi-select must be nil")
	}
}

func TestDateValueStartTruncatesTimestamp(t *testing.T) {
	page := &Page{Properties: map[string]Property{
		"Close Date": {Date: &DateValue{Start: "2026-04-17T14:30:00.000-04:00"}},
	}}
	want := time.Date(2026, time.April, 17, 0, 0, 0, 0, time.UTC)
	if got := page.DateValueStart("Close Date"); !got.Equal(want) {
		t.Errorf("DateValueStart = %v, want %v", got, want)
	}
}

func TestPropertyConstructors(t *testing.T) {
	if p := DateProp(time.Time{}); p.Date != nil {
		t.Error("zero time must produce an empty date property")
	}
	if p := SelectProp(""); p.Select != nil {
		t.Error("empty select must stay unset")
	}
	p := TextProp("hello")
	if len(p.RichText) != 1 || p.RichText[0].Text.Content != "hello" {
		t.Errorf("TextProp = %+v", p)
	}
	if p := TextProp(""); len(p.RichText) != 0 {
		t.Error("empty text must clear the property")
	}
}
