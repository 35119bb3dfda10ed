package wren

// ============================================================================
// Unread ledger
// ============================================================================

// UnreadLedger tracks per-conversation unread counts. It carries no
// lock: the session loop is its only writer and reader.
type UnreadLedger struct {
	counts map[ConvKey]int
}

func NewUnreadLedger() *UnreadLedger {
	return &UnreadLedger{counts: make(map[ConvKey]int)}
}

// Count returns the unread count for conv; unknown conversations are
// zero.
func (l *UnreadLedger) Count(conv ConvKey) int {
	return l.counts[conv]
}

// Increment bumps the count for conv by one.
func (l *UnreadLedger) Increment(conv ConvKey) {
	l.counts[conv]++
}

// Reset zeroes the count for conv.
func (l *UnreadLedger) Reset(conv ConvKey) {
	delete(l.counts, conv)
}

// Bootstrap ensures conv has an entry. Existing counts are kept, so a
// roster refresh never clobbers unread state accumulated while it was
// in flight.
func (l *UnreadLedger) Bootstrap(conv ConvKey) {
	if _, ok := l.counts[conv]; !ok {
		l.counts[conv] = 0
	}
}

// Reconcile folds an authoritative snapshot into the ledger. Counts
// for conversations named by the snapshot are overwritten, including
// down to zero; conversations the snapshot does not mention keep their
// local counts. Negative snapshot values are clamped to zero.
func (l *UnreadLedger) Reconcile(snapshot map[ConvKey]int) {
	for conv, n := range snapshot {
		if n < 0 {
			n = 0
		}
		l.counts[conv] = n
	}
}

// Total sums every unread count.
func (l *UnreadLedger) Total() int {
	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}

// Snapshot copies the current counts for display code.
func (l *UnreadLedger) Snapshot() map[ConvKey]int {
	out := make(map[ConvKey]int, len(l.counts))
	for conv, n := range l.counts {
		out[conv] = n
	}
	return out
}
