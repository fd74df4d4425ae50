// Package dedupe collapses overlapping role-assignment records within and
// across services. The same real-world grant routinely shows up through
// several API surfaces (a direct directory role assignment, a PIM schedule,
// a service role group), so a naive union overcounts privileged access.
package dedupe

import (
	"fmt"
	"strings"

	"github.com/privaudit/privaudit/internal/assignment"
)

// Mode selects the duplicate-matching policy.
type Mode string

const (
	// ModeStrict treats records as duplicates only when principal, role and
	// assignment type all match. First record wins.
	ModeStrict Mode = "strict"
	// ModeLoose matches on principal and role alone; a later record replaces
	// the held one when its assignment type is more specific (PIM-eligible
	// beats anything else, PIM-active beats plain Active).
	ModeLoose Mode = "loose"
	// ModeServicePreference matches like strict but resolves collisions by
	// service-authority rank instead of arrival order.
	ModeServicePreference Mode = "service-preference"
)

// ParseMode validates a mode string from configuration. An unknown mode is a
// configuration error, not a data condition, and is rejected here.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeStrict, "":
		return ModeStrict, nil
	case ModeLoose:
		return ModeLoose, nil
	case ModeServicePreference:
		return ModeServicePreference, nil
	}
	return "", fmt.Errorf("unknown deduplication mode %q (want strict, loose or service-preference)", raw)
}

// Options controls a deduplication run.
type Options struct {
	Mode Mode
	// PreferAzureADSource enables a secondary pass that, for each
	// (principal, role) group in the deduplicated result, keeps only the
	// Azure AD record when one exists and drops the service-side echoes.
	PreferAzureADSource bool
}

// Removed describes one record dropped during deduplication, for
// transparency in the final report.
type Removed struct {
	Record assignment.Record `json:"record"`
	Reason string            `json:"reason"`
}

// Duplicate-removal reasons recorded in Removed entries.
const (
	ReasonExactDuplicate  = "Exact duplicate"
	ReasonReplacedByType  = "Replaced by higher-precedence assignment type"
	ReasonKeptOriginal    = "Kept original assignment type"
	ReasonKeptPreferred   = "Kept preferred service source"
	ReasonPreferredAzureAD = "Preferred Azure AD as authoritative source"
)

// Deduplicate returns the unique records under opts.Mode plus a descriptor
// for every record that was dropped. The input slice is never mutated;
// iteration order of the input decides ties, so callers must supply records
// in a stable, meaningful order. Records with missing fields are still keyed
// (empty placeholders) and processed; nothing is silently skipped.
func Deduplicate(records []assignment.Record, opts Options) ([]assignment.Record, []Removed, error) {
	var (
		unique  []assignment.Record
		removed []Removed
	)

	switch opts.Mode {
	case ModeStrict:
		unique, removed = dedupeStrict(records)
	case ModeLoose:
		unique, removed = dedupeLoose(records)
	case ModeServicePreference:
		unique, removed = dedupeServicePreference(records)
	default:
		return nil, nil, fmt.Errorf("unknown deduplication mode %q", opts.Mode)
	}

	if opts.PreferAzureADSource {
		unique, removed = preferAzureAD(unique, removed)
	}
	return unique, removed, nil
}

func dedupeStrict(records []assignment.Record) ([]assignment.Record, []Removed) {
	unique := make([]assignment.Record, 0, len(records))
	var removed []Removed
	seen := make(map[string]struct{}, len(records))

	for _, r := range records {
		k := strictKey(r)
		if _, ok := seen[k]; ok {
			removed = append(removed, Removed{Record: r, Reason: ReasonExactDuplicate})
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, r)
	}
	return unique, removed
}

func dedupeLoose(records []assignment.Record) ([]assignment.Record, []Removed) {
	unique := make([]assignment.Record, 0, len(records))
	var removed []Removed
	held := make(map[string]int, len(records))

	for _, r := range records {
		k := looseKey(r)
		idx, ok := held[k]
		if !ok {
			held[k] = len(unique)
			unique = append(unique, r)
			continue
		}
		if outranks(r.AssignmentType, unique[idx].AssignmentType) {
			removed = append(removed, Removed{Record: unique[idx], Reason: ReasonReplacedByType})
			unique[idx] = r
			continue
		}
		removed = append(removed, Removed{Record: r, Reason: ReasonKeptOriginal})
	}
	return unique, removed
}

func dedupeServicePreference(records []assignment.Record) ([]assignment.Record, []Removed) {
	unique := make([]assignment.Record, 0, len(records))
	var removed []Removed
	held := make(map[string]int, len(records))

	for _, r := range records {
		k := strictKey(r)
		idx, ok := held[k]
		if !ok {
			held[k] = len(unique)
			unique = append(unique, r)
			continue
		}
		if r.Service.Rank() > unique[idx].Service.Rank() {
			removed = append(removed, Removed{
				Record: unique[idx],
				Reason: fmt.Sprintf("Preferred service source (%s over %s)", r.Service, unique[idx].Service),
			})
			unique[idx] = r
			continue
		}
		removed = append(removed, Removed{Record: r, Reason: ReasonKeptPreferred})
	}
	return unique, removed
}

// preferAzureAD runs over an already-deduplicated set: within each
// (principal, role) group that contains an Azure AD record, only the first
// Azure AD record survives. Groups without one are left untouched.
func preferAzureAD(unique []assignment.Record, removed []Removed) ([]assignment.Record, []Removed) {
	hasAzureAD := make(map[string]bool, len(unique))
	for _, r := range unique {
		if r.Service == assignment.ServiceAzureAD {
			hasAzureAD[looseKey(r)] = true
		}
	}

	kept := make([]assignment.Record, 0, len(unique))
	taken := make(map[string]bool)
	for _, r := range unique {
		k := looseKey(r)
		if !hasAzureAD[k] {
			kept = append(kept, r)
			continue
		}
		if r.Service == assignment.ServiceAzureAD && !taken[k] {
			taken[k] = true
			kept = append(kept, r)
			continue
		}
		removed = append(removed, Removed{Record: r, Reason: ReasonPreferredAzureAD})
	}
	return kept, removed
}

// outranks reports whether assignment type a is a more specific grant than
// b: anything PIM-eligible outranks anything that is not, and a PIM-active
// type outranks a plain Active.
func outranks(a, b string) bool {
	if assignment.IsPIMEligible(a) && !assignment.IsPIMEligible(b) {
		return true
	}
	if assignment.IsPIMActive(a) && b == assignment.TypeActive {
		return true
	}
	return false
}

// Keys are case-insensitive: the sources disagree on principal-name casing
// between API surfaces.

func strictKey(r assignment.Record) string {
	return strings.ToLower(r.UserPrincipalName) + "|" + strings.ToLower(r.RoleName) + "|" + strings.ToLower(r.AssignmentType)
}

func looseKey(r assignment.Record) string {
	return strings.ToLower(r.UserPrincipalName) + "|" + strings.ToLower(r.RoleName)
}
