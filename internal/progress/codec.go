package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// CurrentSchemaVersion tags every payload this build writes.
//
// Version history:
//
//	1 - untagged payloads without login counters
//	2 - explicit schemaVersion, totalLogins/lastLoginDate/weeklyProgress/dailyCycleStart
const CurrentSchemaVersion = 2

// Envelope is the stored representation of a snapshot. Device metadata is
// flattened next to the snapshot fields so older readers ignore it.
type Envelope struct {
	Snapshot
	DeviceID  string    `json:"deviceId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Encode serializes a snapshot at the current schema version.
func Encode(s Snapshot) ([]byte, error) {
	return EncodeEnvelope(Envelope{Snapshot: s})
}

// EncodeEnvelope serializes a snapshot together with its write metadata.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	env.Snapshot = env.Snapshot.Normalize()
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored payload, upgrading older schema versions. Payloads
// that are not JSON objects fail with ErrCorruptSnapshot.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if env.SchemaVersion < 2 {
		env.Snapshot = migrateV1(env.Snapshot)
	}
	env.Snapshot = env.Snapshot.Normalize()
	return env, nil
}

// migrateV1 derives the login counters that version 1 did not store. The
// claimed daily days are the only evidence of progress in the running cycle,
// so the cycle is assumed to have started on the first recorded login.
func migrateV1(s Snapshot) Snapshot {
	if s.WeeklyProgress == 0 {
		for _, d := range s.ClaimedDailyRewards {
			s.WeeklyProgress = max(s.WeeklyProgress, d)
		}
	}
	if s.TotalLogins < s.WeeklyProgress {
		s.TotalLogins = s.WeeklyProgress
	}
	if s.DailyCycleStart == 0 && s.WeeklyProgress > 0 {
		s.DailyCycleStart = s.TotalLogins - s.WeeklyProgress + 1
	}
	return s
}
