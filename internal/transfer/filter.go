package transfer

import (
	"strings"

	"github.com/blockedby/relaybot/internal/telegram"
)

// Decision is the outcome of filtering one message.
type Decision int

// Decision constants.
const (
	Accept Decision = iota
	Skip
	// Stop ends the scan: everything older is out of range too.
	Stop
)

// Filter applies the date, media and keyword rules of a payload.
type Filter struct {
	payload *Payload
	keyword string
}

// NewFilter prepares the filter for a validated payload.
func NewFilter(p *Payload) *Filter {
	return &Filter{payload: p, keyword: strings.ToLower(p.Keyword)}
}

// Check decides what to do with msg. reason names the rule that rejected it.
func (f *Filter) Check(msg telegram.Message) (Decision, string) {
	if f.payload.Mode == ModeDateRange && f.payload.DateRange != nil {
		r := f.payload.DateRange
		if msg.Date.Before(r.Start) {
			return Stop, "before_start"
		}
		if msg.Date.After(r.End) {
			return Skip, "after_end"
		}
	}
	if msg.Media == nil || !f.payload.Wants(msg.Media.Kind) {
		return Skip, "media"
	}
	if f.keyword != "" && !strings.Contains(strings.ToLower(msg.Text), f.keyword) {
		return Skip, "keyword"
	}
	return Accept, ""
}
