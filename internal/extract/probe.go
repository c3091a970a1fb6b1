package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/patrickjm/staffcount/internal/table"
)

type ProbeResult struct {
	Slots       int    `json:"slots"`
	Indicators  int    `json:"indicators"`
	DateLabels  int    `json:"date_labels"`
	NextButtons int    `json:"next_buttons"`
	DateText    string `json:"date_text"`
}

// Ready reports whether a weekly run can start on the probed page.
func (r ProbeResult) Ready() bool {
	return r.Slots >= table.Hours && r.DateLabels == 1 && r.NextButtons >= 1
}

func (r ProbeResult) Problems() []string {
	var out []string
	if r.Slots < table.Hours {
		out = append(out, fmt.Sprintf("found %d hour slots, need %d", r.Slots, table.Hours))
	}
	if r.DateLabels == 0 {
		out = append(out, "date label not found")
	} else if r.DateLabels > 1 {
		out = append(out, fmt.Sprintf("date label matches %d elements", r.DateLabels))
	}
	if r.NextButtons == 0 {
		out = append(out, "next day button not found")
	}
	return out
}

// Probe counts selector matches in a page snapshot without touching the
// live page.
func Probe(html string, sel Selectors) (ProbeResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ProbeResult{}, err
	}
	var res ProbeResult
	res.Slots = doc.Find(sel.Slot).Length()
	res.Indicators = doc.Find(sel.Indicator).Length()
	labels := doc.Find(sel.DateLabel)
	res.DateLabels = labels.Length()
	res.DateText = strings.Join(strings.Fields(labels.First().Text()), " ")
	res.NextButtons = doc.Find(sel.NextButton).Length()
	return res, nil
}
