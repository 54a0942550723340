package livesync

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is a domain entity displayed in a live list: a message, a
// notification, a task. Confirmed records carry a server-assigned id;
// tentative records carry a locally generated temp id until reconciled.
type Record interface {
	RecordID() string
	RecordScope() string
	RecordCreatedAt() time.Time
}

const tempIDPrefix = "temp-"

// IsTempID reports whether the identifier names a tentative, not yet
// server-confirmed record.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// IDProvider issues unique identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// NewTempID issues a prefixed identifier for a tentative record.
func NewTempID(provider IDProvider) (string, error) {
	id, err := provider.NewID()
	if err != nil {
		return "", err
	}
	return tempIDPrefix + id, nil
}
