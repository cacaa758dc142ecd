package service

import (
	"encoding/json"

	"softspot/internal/models"
	"softspot/internal/outbox"
	"softspot/internal/remote"
)

// overlay applies pending intents on top of rows read from the remote store.
// Upserted rows the remote does not have yet are added only when addNew is
// set, which callers do for the first page.
func overlay[T any](rows []T, events []models.OutboxEvent, idOf func(T) string, addNew bool) []T {
	if len(events) == 0 {
		return rows
	}
	out := append([]T(nil), rows...)

	indexOf := func(id string) int {
		for i, r := range out {
			if idOf(r) == id {
				return i
			}
		}
		return -1
	}

	for _, e := range events {
		switch e.Op {
		case models.OpUpsert:
			var row T
			if err := json.Unmarshal(e.Payload, &row); err != nil {
				continue
			}
			if i := indexOf(idOf(row)); i >= 0 {
				out[i] = row
			} else if addNew {
				out = append(out, row)
			}

		case models.OpUpdate:
			var values map[string]any
			if err := json.Unmarshal(e.Payload, &values); err != nil {
				continue
			}
			match := eventMatch(e)
			for i := range out {
				if matches(out[i], match) {
					out[i] = patch(out[i], func(m map[string]any) {
						for k, v := range values {
							m[k] = v
						}
					})
				}
			}

		case models.OpDelete:
			match := eventMatch(e)
			kept := out[:0]
			for _, r := range out {
				if !matches(r, match) {
					kept = append(kept, r)
				}
			}
			out = kept

		case models.OpRPC:
			var call outbox.RPCCall
			if err := json.Unmarshal(e.Payload, &call); err != nil {
				continue
			}
			switch call.Fn {
			case "adjust_post_counter":
				counter, _ := call.Args["p_counter"].(string)
				delta, _ := call.Args["p_delta"].(float64)
				if counter != remote.CounterLikes && counter != remote.CounterComments {
					continue
				}
				if i := indexOf(e.EntityID); i >= 0 {
					out[i] = patch(out[i], func(m map[string]any) {
						current, _ := m[counter].(float64)
						m[counter] = max(current+delta, 0)
					})
				}
			case "set_comment_like":
				commentID, _ := call.Args["p_comment_id"].(string)
				userID, _ := call.Args["p_user_id"].(string)
				liked, _ := call.Args["p_liked"].(bool)
				if i := indexOf(commentID); i >= 0 && userID != "" {
					out[i] = patch(out[i], func(m map[string]any) {
						m["likes"] = withLike(m["likes"], userID, liked)
					})
				}
			}
		}
	}
	return out
}

// withLike sets userID's membership in a decoded like-set.
func withLike(likes any, userID string, liked bool) []any {
	current, _ := likes.([]any)
	out := make([]any, 0, len(current)+1)
	for _, l := range current {
		if like, _ := l.(map[string]any); like["user_id"] == userID {
			continue
		}
		out = append(out, l)
	}
	if liked {
		out = append(out, map[string]any{"user_id": userID})
	}
	return out
}

func eventMatch(e models.OutboxEvent) map[string]any {
	var match map[string]any
	if len(e.Match) > 0 {
		_ = json.Unmarshal(e.Match, &match)
	}
	if len(match) == 0 {
		match = map[string]any{"id": e.EntityID}
	}
	return match
}

// matches compares row fields to match after a JSON round trip so numbers
// and strings compare the way they were encoded.
func matches[T any](row T, match map[string]any) bool {
	m := toMap(row)
	for k, want := range match {
		a, _ := json.Marshal(m[k])
		b, _ := json.Marshal(want)
		if string(a) != string(b) {
			return false
		}
	}
	return true
}

func toMap(v any) map[string]any {
	raw, _ := json.Marshal(v)
	m := map[string]any{}
	_ = json.Unmarshal(raw, &m)
	return m
}

func patch[T any](row T, fn func(map[string]any)) T {
	m := toMap(row)
	fn(m)
	raw, err := json.Marshal(m)
	if err != nil {
		return row
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return row
	}
	return out
}
