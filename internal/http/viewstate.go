package http

import (
	"sync"
	"time"

	"txadmin/internal/cache"
	"txadmin/internal/core"
)

// View names, used in cache keys, metrics labels and the table:refresh
// event.
const (
	viewDraft = "draft"
	viewList  = "list"
	viewRecap = "recap"
)

// List and recap columns the API sorts on.
var (
	listSortFields  = []string{"description", "code", "rate_euro", "date_paid", "category_name", "name", "value_idr"}
	recapSortFields = []string{"date", "category", "value_idr"}
)

// draftState is one open form. mu serializes the operations of a draft,
// including its save call. Errors holds the field messages of the last
// rejected save.
type draftState struct {
	mu     sync.Mutex
	draft  *core.Draft
	errors map[string]string
}

// viewStates holds the per-session view state. Keys are
// "<session id>:<view>[:<draft id>]" so a session's views can be dropped
// together.
type viewStates struct {
	drafts *cache.LRUCache[*draftState]
	lists  *cache.LRUCache[*core.Table[core.TransactionRow]]
	recaps *cache.LRUCache[*core.Table[core.RecapRow]]
}

func newViewStates(maxEntries int, ttl time.Duration) *viewStates {
	return &viewStates{
		drafts: cache.NewLRUCache[*draftState](maxEntries, ttl),
		lists:  cache.NewLRUCache[*core.Table[core.TransactionRow]](maxEntries, ttl),
		recaps: cache.NewLRUCache[*core.Table[core.RecapRow]](maxEntries, ttl),
	}
}

func viewKey(sessionID, view string) string {
	return sessionID + ":" + view
}

func draftKey(sessionID, draftID string) string {
	return viewKey(sessionID, viewDraft) + ":" + draftID
}

func (v *viewStates) list(sessionID string) *core.Table[core.TransactionRow] {
	t, _ := v.lists.GetOrSet(viewKey(sessionID, viewList), func() *core.Table[core.TransactionRow] {
		return core.NewTable[core.TransactionRow](listSortFields...)
	})
	return t
}

func (v *viewStates) recap(sessionID string) *core.Table[core.RecapRow] {
	t, _ := v.recaps.GetOrSet(viewKey(sessionID, viewRecap), func() *core.Table[core.RecapRow] {
		return core.NewTable[core.RecapRow](recapSortFields...)
	})
	return t
}

func (v *viewStates) putDraft(sessionID, draftID string, d *core.Draft) {
	v.drafts.Set(draftKey(sessionID, draftID), &draftState{draft: d})
}

func (v *viewStates) draft(sessionID, draftID string) (*draftState, bool) {
	return v.drafts.Get(draftKey(sessionID, draftID))
}

func (v *viewStates) dropDraft(sessionID, draftID string) {
	v.drafts.Delete(draftKey(sessionID, draftID))
}

// drop forgets every view of a session and returns how many were held.
func (v *viewStates) drop(sessionID string) int {
	prefix := sessionID + ":"
	return v.drafts.DeletePrefix(prefix) + v.lists.DeletePrefix(prefix) + v.recaps.DeletePrefix(prefix)
}

func (v *viewStates) size() int {
	return v.drafts.Size() + v.lists.Size() + v.recaps.Size()
}

func (v *viewStates) cleaners() []cache.Cleaner {
	return []cache.Cleaner{v.drafts, v.lists, v.recaps}
}
