// Package roster derives the conversation list presentation from current
// state. Ordering is a pure function so it can be re-run on every state
// change without drift.
package roster

import (
	"sort"
	"strings"

	"github.com/peerwell/chatclient/internal/model"
)

// Order sorts a copy of conns for display. Rules, highest priority first:
//
//  1. The selected conversation sorts last, so the active chat never jumps
//     under the user's cursor.
//  2. Conversations with unread messages sort before those without.
//  3. Ties break by case-insensitive display name.
//
// unread is keyed by connection id; selectedID is 0 when nothing is open.
func Order(conns []model.Connection, unread map[int64]int, selectedID int64) []model.Connection {
	out := make([]model.Connection, len(conns))
	copy(out, conns)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		if aSel, bSel := a.ID == selectedID, b.ID == selectedID; aSel != bSel {
			return bSel
		}

		if aUnread, bUnread := unread[a.ID] > 0, unread[b.ID] > 0; aUnread != bUnread {
			return aUnread
		}

		return strings.ToLower(a.FullName) < strings.ToLower(b.FullName)
	})

	return out
}
