package engine

import (
	"bufio"
	"encoding/json"
	"io"
	"time"

	"options-backtester/internal/models"
)

// AuditLog is the append-only record of every decision the engine makes.
// Entries are ordered by call sequence and never mutated or removed;
// corrections append superseding entries. Re-running the engine on
// identical inputs reproduces a byte-identical encoded log: timestamps come
// from the snapshot clock and value maps serialize with sorted keys.
type AuditLog struct {
	entries []models.AuditEntry
	seq     int64
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append records one decision. The sequence number is assigned here.
func (l *AuditLog) Append(ts time.Time, decision models.DecisionType, positionID, criterion string, passed bool, reason string, values map[string]float64) {
	l.seq++
	l.entries = append(l.entries, models.AuditEntry{
		Seq:        l.seq,
		Timestamp:  ts,
		Decision:   decision,
		PositionID: positionID,
		Criterion:  criterion,
		Passed:     passed,
		Reason:     reason,
		Values:     values,
	})
}

// Entries returns the recorded entries in append order.
func (l *AuditLog) Entries() []models.AuditEntry {
	return l.entries
}

// Len returns the number of recorded entries.
func (l *AuditLog) Len() int {
	return len(l.entries)
}

// Encode writes the log as JSON lines. encoding/json sorts map keys, so the
// output is deterministic for a given entry sequence.
func (l *AuditLog) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := range l.entries {
		data, err := json.Marshal(&l.entries[i])
		if err != nil {
			return err
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
