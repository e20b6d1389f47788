package history

import "strconv"

// SeparatorIDPrefix prefixes the id of the synthetic compaction marker.
const SeparatorIDPrefix = "compaction-"

// Result is the outcome of a reconciliation.
type Result struct {
	Messages     []Message `json:"messages" yaml:"messages"`
	WasCompacted bool      `json:"wasCompacted" yaml:"wasCompacted"`
}

// Reconcile merges the gateway's current window with the cached history.
//
// Cached records whose id the gateway no longer reports are kept, in their
// cached order, as archived copies followed by a single separator and then
// the gateway window. When nothing is missing the gateway slice is returned
// as-is. Both inputs must be id-unique; neither is modified.
//
// Separators found in cached are boundaries from an earlier call. They are
// never archived and never carried over; the one boundary that matters is
// rebuilt in front of the current window.
func Reconcile(gateway, cached []Message) Result {
	live := make(map[string]struct{}, len(gateway))
	for _, m := range gateway {
		live[m.ID] = struct{}{}
	}

	var archived []Message
	for _, m := range cached {
		if m.IsCompactionSeparator {
			continue
		}
		if _, ok := live[m.ID]; ok {
			continue
		}
		// m is a copy; Blocks still aliases the caller's backing array, which
		// is never written through.
		m.IsArchived = true
		archived = append(archived, m)
	}
	if len(archived) == 0 {
		return Result{Messages: gateway, WasCompacted: false}
	}

	out := make([]Message, 0, len(archived)+1+len(gateway))
	out = append(out, archived...)
	out = append(out, NewSeparator(separatorTimestamp(gateway, archived)))
	out = append(out, gateway...)
	return Result{Messages: out, WasCompacted: true}
}

// separatorTimestamp places the marker just before the first surviving
// message, or just after the last archived one when the gateway is empty.
func separatorTimestamp(gateway, archived []Message) int64 {
	if len(gateway) > 0 {
		return gateway[0].Timestamp - 1
	}
	return archived[len(archived)-1].Timestamp + 1
}

// NewSeparator builds the compaction marker for the given timestamp. The id
// is derived from the timestamp so repeated builds are identical.
func NewSeparator(timestamp int64) Message {
	return Message{
		ID:                    SeparatorIDPrefix + strconv.FormatInt(timestamp, 10),
		Role:                  RoleSystem,
		Timestamp:             timestamp,
		Blocks:                []Block{},
		IsCompactionSeparator: true,
	}
}
