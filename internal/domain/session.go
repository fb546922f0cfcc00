package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// SessionDuration is the fixed horizon of a locally cached session. It is set at write
// time and never extended.
const SessionDuration = 2 * time.Hour

// SessionRecord is the persisted layout of a client session: a team snapshot plus an
// absolute expiry in unix milliseconds.
type SessionRecord struct {
	Team   Team  `json:"team"`
	Expiry int64 `json:"expiry"`
}

// NewSessionRecord stamps team with now+SessionDuration.
func NewSessionRecord(team Team, now time.Time) SessionRecord {
	return SessionRecord{
		Team:   team.WithoutPassword(),
		Expiry: now.Add(SessionDuration).UnixMilli(),
	}
}

// ExpiresAt converts the stored expiry back to a time.
func (r SessionRecord) ExpiresAt() time.Time {
	return time.UnixMilli(r.Expiry)
}

// Valid reports whether the record may still be used at now.
func (r SessionRecord) Valid(now time.Time) bool {
	return r.Team.ID != "" && now.Before(r.ExpiresAt())
}

var errMalformedSession = errors.New("malformed session record")

// EncodeSessionRecord serializes a record for storage.
func EncodeSessionRecord(r SessionRecord) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeSessionRecord parses stored bytes. Records without a team or expiry are malformed.
func DecodeSessionRecord(data []byte) (SessionRecord, error) {
	var r SessionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return SessionRecord{}, err
	}
	if r.Team.ID == "" || r.Expiry == 0 {
		return SessionRecord{}, errMalformedSession
	}
	return r, nil
}
