// Package alerts collects formula evaluation failures and mails a periodic
// digest to the pricing administrator.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const digestSendTimeout = 10 * time.Second

// Failure aggregates the evaluation failures of one formula since the last digest.
type Failure struct {
	Formula   string
	Count     int
	LastError string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Collector records failures in memory, one entry per formula. It is safe for
// concurrent use and satisfies the pricing and snapshot reporter interfaces.
type Collector struct {
	mu       sync.Mutex
	failures map[string]*Failure
	now      func() time.Time
}

func NewCollector() *Collector {
	return &Collector{
		failures: make(map[string]*Failure),
		now:      time.Now,
	}
}

// ReportFormulaFailure records err against formulaName.
func (c *Collector) ReportFormulaFailure(ctx context.Context, formulaName string, err error) {
	if c == nil || err == nil {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.failures[formulaName]
	if !ok {
		f = &Failure{Formula: formulaName, FirstSeen: now}
		c.failures[formulaName] = f
	}
	f.Count++
	f.LastError = err.Error()
	f.LastSeen = now
}

// Pending returns the recorded failures sorted by formula name.
func (c *Collector) Pending() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collector) snapshotLocked() []Failure {
	out := make([]Failure, 0, len(c.failures))
	for _, f := range c.failures {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Formula < out[j].Formula })
	return out
}

// Digest mails pending failures to a fixed recipient.
type Digest struct {
	collector *Collector
	sender    EmailSender
	recipient string
	subject   string
}

func NewDigest(collector *Collector, sender EmailSender, recipient string) *Digest {
	return &Digest{
		collector: collector,
		sender:    sender,
		recipient: recipient,
		subject:   "Pricing formula failures",
	}
}

// Flush sends the pending failures and clears them. Nothing is sent when no
// failures were recorded. On send failure the entries are kept for the next run.
func (d *Digest) Flush(ctx context.Context) (int, error) {
	if d == nil || d.collector == nil || d.sender == nil {
		return 0, nil
	}
	logger := log.Ctx(ctx).With().Str("component", "alerts").Logger()

	d.collector.mu.Lock()
	pending := d.collector.snapshotLocked()
	d.collector.failures = make(map[string]*Failure)
	d.collector.mu.Unlock()

	if len(pending) == 0 {
		return 0, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, digestSendTimeout)
	defer cancel()
	if err := d.sender.Send(sendCtx, d.recipient, d.subject, FormatDigest(pending)); err != nil {
		d.restore(pending)
		logger.Error().Err(err).Int("formulas", len(pending)).Msg("Failed to send formula failure digest")
		return 0, fmt.Errorf("send digest: %w", err)
	}

	logger.Info().Int("formulas", len(pending)).Str("recipient", d.recipient).Msg("Formula failure digest sent")
	return len(pending), nil
}

// restore merges unsent failures back into the collector.
func (d *Digest) restore(pending []Failure) {
	c := d.collector
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range pending {
		cur, ok := c.failures[p.Formula]
		if !ok {
			p := p
			c.failures[p.Formula] = &p
			continue
		}
		cur.Count += p.Count
		if p.FirstSeen.Before(cur.FirstSeen) {
			cur.FirstSeen = p.FirstSeen
		}
	}
}

// FormatDigest renders failures as a plain-text email body.
func FormatDigest(failures []Failure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d pricing formula(s) failed to evaluate and fell back to the standard calculation.\n\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(&b, "%s\n", f.Formula)
		fmt.Fprintf(&b, "  failures: %d\n", f.Count)
		fmt.Fprintf(&b, "  first seen: %s\n", f.FirstSeen.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "  last seen: %s\n", f.LastSeen.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "  last error: %s\n\n", f.LastError)
	}
	b.WriteString("Fix or deactivate these formulas in the pricing admin.\n")
	return b.String()
}
