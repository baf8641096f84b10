package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Channel is a notification bookkeeping tag recorded on a turn.
type Channel string

const (
	ChannelWeb     Channel = "web"
	ChannelDiscord Channel = "discord"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWarning Channel = "warning"
	// ChannelTimeout marks that a one-shot host override reminder went out.
	ChannelTimeout Channel = "timeout"
)

var channelRank = map[Channel]int{
	ChannelWeb:     0,
	ChannelDiscord: 1,
	ChannelEmail:   2,
	ChannelSMS:     3,
	ChannelWarning: 4,
	ChannelTimeout: 5,
}

// ChannelSet is an immutable, grow-only set of channel tags. The zero value
// is the empty set. Tags are kept in canonical order so that equal sets
// serialize identically.
type ChannelSet struct {
	tags []Channel
}

// NewChannelSet builds a set from tags, dropping blanks and duplicates.
func NewChannelSet(tags ...Channel) ChannelSet {
	return ChannelSet{}.Union(tags...)
}

// Union returns a new set containing s and tags. s is never modified.
func (s ChannelSet) Union(tags ...Channel) ChannelSet {
	merged := make([]Channel, 0, len(s.tags)+len(tags))
	merged = append(merged, s.tags...)
	for _, tag := range tags {
		tag = Channel(strings.TrimSpace(string(tag)))
		if tag == "" || containsChannel(merged, tag) {
			continue
		}
		merged = append(merged, tag)
	}
	sortChannels(merged)
	return ChannelSet{tags: merged}
}

// Has reports whether tag is in the set.
func (s ChannelSet) Has(tag Channel) bool {
	return containsChannel(s.tags, tag)
}

// Prompted reports whether a delivery tag (web, discord, email or sms) has
// been recorded. The warning and timeout tags do not count.
func (s ChannelSet) Prompted() bool {
	for _, tag := range s.tags {
		switch tag {
		case ChannelWeb, ChannelDiscord, ChannelEmail, ChannelSMS:
			return true
		}
	}
	return false
}

// Len returns the number of tags.
func (s ChannelSet) Len() int { return len(s.tags) }

// IsEmpty reports whether no tag has been recorded.
func (s ChannelSet) IsEmpty() bool { return len(s.tags) == 0 }

// Slice returns a copy of the tags in canonical order.
func (s ChannelSet) Slice() []Channel {
	out := make([]Channel, len(s.tags))
	copy(out, s.tags)
	return out
}

// Strings returns the tags as plain strings in canonical order.
func (s ChannelSet) Strings() []string {
	out := make([]string, len(s.tags))
	for i, tag := range s.tags {
		out[i] = string(tag)
	}
	return out
}

// IsSupersetOf reports whether every tag of other is in s.
func (s ChannelSet) IsSupersetOf(other ChannelSet) bool {
	for _, tag := range other.tags {
		if !s.Has(tag) {
			return false
		}
	}
	return true
}

func (s ChannelSet) String() string {
	return "[" + strings.Join(s.Strings(), ",") + "]"
}

// MarshalJSON encodes the set as a JSON array.
func (s ChannelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes a JSON array of tags.
func (s *ChannelSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("models: decode channel set: %w", err)
	}
	*s = fromStrings(raw)
	return nil
}

// Value implements driver.Valuer. Sets persist as a JSON array unless
// written through gorm on Postgres, see GormValue.
func (s ChannelSet) Value() (driver.Value, error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDBDataType maps the column to text[] on Postgres and text elsewhere.
func (ChannelSet) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if isPostgres(db) {
		return "text[]"
	}
	return "text"
}

// GormValue writes a Postgres array literal on Postgres and the JSON array
// everywhere else.
func (s ChannelSet) GormValue(_ context.Context, db *gorm.DB) clause.Expr {
	if isPostgres(db) {
		return clause.Expr{SQL: "?", Vars: []interface{}{s.ArrayLiteral()}}
	}
	v, _ := s.Value()
	return clause.Expr{SQL: "?", Vars: []interface{}{v}}
}

// ArrayLiteral renders the set as a Postgres text[] literal with every
// element quoted, e.g. {"web","email"}.
func (s ChannelSet) ArrayLiteral() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, tag := range s.tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		for _, r := range string(tag) {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// Scan implements sql.Scanner. It accepts NULL, a JSON array, or a
// Postgres array literal such as {web,email}.
func (s *ChannelSet) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = ChannelSet{}
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("models: scan channel set: unsupported type %T", src)
	}

	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == "null":
		*s = ChannelSet{}
		return nil
	case strings.HasPrefix(raw, "{"):
		parts, err := parseArrayLiteral(raw)
		if err != nil {
			return err
		}
		*s = fromStrings(parts)
		return nil
	default:
		return s.UnmarshalJSON([]byte(raw))
	}
}

// parseArrayLiteral splits a one-dimensional Postgres array literal.
// Unquoted NULL elements are dropped.
func parseArrayLiteral(raw string) ([]string, error) {
	if !strings.HasSuffix(raw, "}") {
		return nil, fmt.Errorf("models: scan channel set: malformed array literal %q", raw)
	}
	inner := raw[1 : len(raw)-1]
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		inQuote bool
		escaped bool
	)
	flush := func() {
		elem := cur.String()
		if !quoted {
			elem = strings.TrimSpace(elem)
			if strings.EqualFold(elem, "null") {
				elem = ""
			}
		}
		if elem != "" {
			out = append(out, elem)
		}
		cur.Reset()
		quoted = false
	}
	for _, r := range inner {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			quoted = true
		case r == ',' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote || escaped {
		return nil, fmt.Errorf("models: scan channel set: malformed array literal %q", raw)
	}
	flush()
	return out, nil
}

func isPostgres(db *gorm.DB) bool {
	return db != nil && db.Config != nil && db.Dialector != nil && db.Dialector.Name() == "postgres"
}

func fromStrings(raw []string) ChannelSet {
	tags := make([]Channel, 0, len(raw))
	for _, r := range raw {
		tags = append(tags, Channel(r))
	}
	return NewChannelSet(tags...)
}

func containsChannel(tags []Channel, tag Channel) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// sortChannels orders known tags by rank, then unknown tags alphabetically.
func sortChannels(tags []Channel) {
	sort.SliceStable(tags, func(i, j int) bool {
		ri, iKnown := channelRank[tags[i]]
		rj, jKnown := channelRank[tags[j]]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return tags[i] < tags[j]
		}
	})
}
