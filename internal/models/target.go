package models

import "fmt"

// Target is a destination platform for generated content.
type Target string

const (
	TargetKuaishou Target = "kuaishou"
	TargetRed      Target = "red"
	TargetBilibili Target = "bilibili"
	TargetDouyin   Target = "douyin"
)

// Targets is the fixed, ordered list every generation run must cover.
var Targets = []Target{TargetKuaishou, TargetRed, TargetBilibili, TargetDouyin}

// ParseTarget validates a raw key against the target set.
func ParseTarget(raw string) (Target, error) {
	for _, t := range Targets {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, raw)
}

// Results maps each target to its generated content.
type Results map[Target]string

// Missing returns targets without content, in Targets order.
func (r Results) Missing() []Target {
	var missing []Target
	for _, t := range Targets {
		if r[t] == "" {
			missing = append(missing, t)
		}
	}
	return missing
}

// Complete reports whether every target has content.
func (r Results) Complete() bool {
	return len(r.Missing()) == 0
}

// Validate rejects keys outside the target set.
func (r Results) Validate() error {
	for k := range r {
		if _, err := ParseTarget(string(k)); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a copy safe to mutate.
func (r Results) Clone() Results {
	out := make(Results, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ResultEntry is the list form of one result used by the curation API.
type ResultEntry struct {
	To      Target `json:"to"`
	Content string `json:"content"`
}

// Entries renders results in Targets order, skipping empty ones.
func (r Results) Entries() []ResultEntry {
	entries := make([]ResultEntry, 0, len(r))
	for _, t := range Targets {
		if content, ok := r[t]; ok && content != "" {
			entries = append(entries, ResultEntry{To: t, Content: content})
		}
	}
	return entries
}
