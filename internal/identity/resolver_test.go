package identity

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func newTestResolver() *Resolver {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewResolver(logger)
}

func TestResolveCollapsesByEmail(t *testing.T) {
	r := newTestResolver()

	first := r.Resolve("Alice", "Alice@X.com", day(1))
	second := r.Resolve("alice smith", "alice@x.com", day(2))

	assert.Equal(t, "alice@x.com", first)
	assert.Equal(t, first, second, "same email collapses regardless of name drift")
	assert.Equal(t, "alice smith", r.DisplayName("alice@x.com"), "most recent name wins")
}

func TestResolveOlderNameDoesNotOverride(t *testing.T) {
	r := newTestResolver()

	r.Resolve("New Name", "a@x.com", day(5))
	r.Resolve("Old Name", "a@x.com", day(1))

	assert.Equal(t, "New Name", r.DisplayName("a@x.com"))
}

func TestMergeReassignsAliases(t *testing.T) {
	r := newTestResolver()
	r.Resolve("A", "a@x.com", day(1))
	r.Resolve("B", "b@x.com", day(1))

	require.NoError(t, r.Merge("a@x.com", []string{"b@x.com"}))

	assert.Equal(t, "a@x.com", r.Resolve("B", "b@x.com", day(2)))
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, r.Aliases("a@x.com"))
	assert.Equal(t, []string{"b@x.com"}, r.MergedEmails("a@x.com"))
}

func TestMergeUnknownContributor(t *testing.T) {
	r := newTestResolver()
	r.Resolve("A", "a@x.com", day(1))

	err := r.Merge("a@x.com", []string{"ghost@x.com"})
	assert.ErrorIs(t, err, ErrUnknownContributor)

	err = r.Merge("ghost@x.com", []string{"a@x.com"})
	assert.ErrorIs(t, err, ErrUnknownContributor)
}

func TestMergeIsIdempotent(t *testing.T) {
	r := newTestResolver()
	r.Resolve("A", "a@x.com", day(1))
	r.Resolve("B", "b@x.com", day(1))

	require.NoError(t, r.Merge("a@x.com", []string{"b@x.com"}))
	require.NoError(t, r.Merge("a@x.com", []string{"b@x.com"}), "re-merging is a no-op, not an error")

	assert.Equal(t, []string{"b@x.com"}, r.MergedEmails("a@x.com"))
}

func TestMergeUnmergeRoundTrip(t *testing.T) {
	r := newTestResolver()
	r.Resolve("A", "a@x.com", day(1))
	r.Resolve("B", "b@x.com", day(1))
	r.Resolve("C", "c@x.com", day(1))

	before := r.Partition()

	require.NoError(t, r.Merge("a@x.com", []string{"b@x.com", "c@x.com"}))
	require.NoError(t, r.Unmerge([]string{"b@x.com", "c@x.com"}))

	assert.Equal(t, before, r.Partition(), "round trip restores the exact pre-merge partition")
}

func TestPartialUnmergeLeavesRestMerged(t *testing.T) {
	r := newTestResolver()
	r.Resolve("A", "a@x.com", day(1))
	r.Resolve("B", "b@x.com", day(1))
	r.Resolve("C", "c@x.com", day(1))

	require.NoError(t, r.Merge("a@x.com", []string{"b@x.com", "c@x.com"}))
	require.NoError(t, r.Unmerge([]string{"b@x.com"}))

	assert.Equal(t, "b@x.com", r.Resolve("B", "b@x.com", day(2)))
	assert.Equal(t, "a@x.com", r.Resolve("C", "c@x.com", day(2)), "c stays merged into a")
	assert.Equal(t, []string{"c@x.com"}, r.MergedEmails("a@x.com"))
}

func TestUnmergeNeverMerged(t *testing.T) {
	r := newTestResolver()
	r.Resolve("A", "a@x.com", day(1))

	err := r.Unmerge([]string{"a@x.com"})
	assert.ErrorIs(t, err, ErrNotMerged)
}

func TestRestoreReplaysPersistedMerges(t *testing.T) {
	r := newTestResolver()
	r.Resolve("A", "a@x.com", day(1))
	r.Resolve("B", "b@x.com", day(1))
	require.NoError(t, r.Merge("a@x.com", []string{"b@x.com"}))

	records := r.Merges()
	require.Len(t, records, 1)

	fresh := newTestResolver()
	fresh.Resolve("A", "a@x.com", day(1))
	fresh.Resolve("B", "b@x.com", day(1))
	fresh.Restore(records)

	assert.Equal(t, "a@x.com", fresh.Resolve("B", "b@x.com", day(2)))
}

func TestRestoreConcurrentWithResolve(t *testing.T) {
	r := newTestResolver()
	r.Resolve("A", "a@x.com", day(1))
	r.Resolve("B", "b@x.com", day(1))
	records := []MergeRecord{{MergedEmail: "b@x.com", PrimaryEmail: "a@x.com"}}

	// Parallel runs replay persisted merges while resolving fresh authors.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			r.Resolve("W", fmt.Sprintf("w%03d@x.com", i), day(2))
		}
	}()
	for i := 0; i < 200; i++ {
		r.Restore(records)
	}
	<-done

	assert.Equal(t, "a@x.com", r.Resolve("B", "b@x.com", day(3)))
	assert.Equal(t, []string{"b@x.com"}, r.MergedEmails("a@x.com"))
}
