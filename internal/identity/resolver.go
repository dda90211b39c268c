// Package identity maps raw commit author (name, email) pairs onto canonical
// contributor identities. Email is the primary key; explicit merges reassign
// aliases between canonical records and are reversible per alias.
package identity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownContributor is returned when a merge names an email that
	// has no commits.
	ErrUnknownContributor = errors.New("unknown contributor")
	// ErrNotMerged is returned when an unmerge names an email that was
	// never merged.
	ErrNotMerged = errors.New("contributor not merged")
)

// MergeRecord is one explicitly merged alias and the canonical identity it
// now resolves to.
type MergeRecord struct {
	MergedEmail  string `json:"merged_email" db:"merged_email"`
	PrimaryEmail string `json:"primary_email" db:"primary_email"`
}

// contributor is one canonical identity in the arena. Commit records are
// never touched by merges; only the alias index is rewritten.
type contributor struct {
	canonicalEmail string
	displayName    string
	nameSeenAt     time.Time
	aliases        map[string]bool
}

// Resolver owns the alias->canonical index. Safe for concurrent use.
type Resolver struct {
	mu           sync.RWMutex
	contributors map[string]*contributor // canonical email -> record
	aliases      map[string]string       // alias email -> canonical email
	mergedInto   map[string]string       // alias email -> canonical email, explicit merges only
	logger       *logrus.Logger
}

// NewResolver creates an empty resolver.
func NewResolver(logger *logrus.Logger) *Resolver {
	return &Resolver{
		contributors: make(map[string]*contributor),
		aliases:      make(map[string]string),
		mergedInto:   make(map[string]string),
		logger:       logger,
	}
}

// Resolve maps a raw author to its canonical email, creating a standalone
// contributor on first sighting. The most recently seen name becomes the
// display name.
func (r *Resolver) Resolve(rawName, rawEmail string, seenAt time.Time) string {
	email := strings.ToLower(strings.TrimSpace(rawEmail))

	r.mu.Lock()
	defer r.mu.Unlock()

	canonical, ok := r.aliases[email]
	if !ok {
		r.contributors[email] = &contributor{
			canonicalEmail: email,
			displayName:    rawName,
			nameSeenAt:     seenAt,
			aliases:        map[string]bool{email: true},
		}
		r.aliases[email] = email
		return email
	}

	c := r.contributors[canonical]
	if rawName != "" && !seenAt.Before(c.nameSeenAt) {
		c.displayName = rawName
		c.nameSeenAt = seenAt
	}
	return canonical
}

// DisplayName returns the canonical display name for an email, falling back
// to the email itself for unknown identities.
func (r *Resolver) DisplayName(email string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.aliases[strings.ToLower(email)]
	if !ok {
		return email
	}
	return r.contributors[canonical].displayName
}

// Aliases returns every raw email currently resolving to the contributor
// owning the given email, sorted for stable output.
func (r *Resolver) Aliases(email string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.aliases[strings.ToLower(email)]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(r.contributors[canonical].aliases))
	for alias := range r.contributors[canonical].aliases {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// MergedEmails returns the aliases explicitly merged into the contributor
// owning the given email.
func (r *Resolver) MergedEmails(email string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.aliases[strings.ToLower(email)]
	if !ok {
		return nil
	}

	var out []string
	for merged, target := range r.mergedInto {
		if target == canonical {
			out = append(out, merged)
		}
	}
	sort.Strings(out)
	return out
}

// Merge reassigns every alias of each listed contributor onto the contributor
// owning primaryEmail. Merging an alias that already resolves to the primary
// is a no-op. Fails with ErrUnknownContributor when any email is unseen.
func (r *Resolver) Merge(primaryEmail string, others []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergeLocked(primaryEmail, others)
}

// mergeLocked is Merge with r.mu already held.
func (r *Resolver) mergeLocked(primaryEmail string, others []string) error {
	primary := strings.ToLower(strings.TrimSpace(primaryEmail))

	target, ok := r.aliases[primary]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContributor, primary)
	}

	// Validate everything before mutating anything.
	for _, other := range others {
		email := strings.ToLower(strings.TrimSpace(other))
		if _, ok := r.aliases[email]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownContributor, email)
		}
	}

	for _, other := range others {
		email := strings.ToLower(strings.TrimSpace(other))
		source := r.aliases[email]
		if source == target {
			continue // already merged, idempotent
		}

		src := r.contributors[source]
		dst := r.contributors[target]
		for alias := range src.aliases {
			dst.aliases[alias] = true
			r.aliases[alias] = target
			r.mergedInto[alias] = target
		}
		delete(r.contributors, source)

		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"primary": target,
				"merged":  source,
			}).Info("merged contributor identities")
		}
	}

	return nil
}

// Unmerge restores each listed alias to its own standalone contributor with
// its original attributions. Scoped per alias: partially unmerging a group
// leaves the remaining aliases merged. Fails with ErrNotMerged for aliases
// that were never merged.
func (r *Resolver) Unmerge(emails []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := r.mergedInto[email]; !ok {
			return fmt.Errorf("%w: %s", ErrNotMerged, email)
		}
	}

	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		owner := r.aliases[email]

		delete(r.contributors[owner].aliases, email)
		delete(r.mergedInto, email)

		r.contributors[email] = &contributor{
			canonicalEmail: email,
			displayName:    email,
			aliases:        map[string]bool{email: true},
		}
		r.aliases[email] = email

		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"email": email,
				"from":  owner,
			}).Info("unmerged contributor identity")
		}
	}

	return nil
}

// Merges snapshots the explicit merge records for persistence.
func (r *Resolver) Merges() []MergeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MergeRecord, 0, len(r.mergedInto))
	for merged, primary := range r.mergedInto {
		out = append(out, MergeRecord{MergedEmail: merged, PrimaryEmail: primary})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MergedEmail < out[j].MergedEmail })
	return out
}

// Restore replays persisted merge records into a freshly built resolver.
// Unknown emails are skipped; they had no commits in this walk.
func (r *Resolver) Restore(records []MergeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		if _, ok := r.aliases[rec.MergedEmail]; !ok {
			continue
		}
		if _, ok := r.aliases[rec.PrimaryEmail]; !ok {
			continue
		}
		if err := r.mergeLocked(rec.PrimaryEmail, []string{rec.MergedEmail}); err != nil && r.logger != nil {
			r.logger.WithError(err).Warn("could not replay contributor merge")
		}
	}
}

// Partition returns alias -> canonical email for every known alias. Used by
// tests to assert the merge/unmerge round-trip law.
func (r *Resolver) Partition() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.aliases))
	for alias, canonical := range r.aliases {
		out[alias] = canonical
	}
	return out
}
