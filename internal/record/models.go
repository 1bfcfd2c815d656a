package record

import (
	"time"

	dErrors "custoda/pkg/domainerrors"
)

// DataType is the closed enumeration of record categories an owner can hold.
type DataType string

const (
	DataTypeIdentity       DataType = "identity"
	DataTypeShelter        DataType = "shelter"
	DataTypeHealth         DataType = "health"
	DataTypeCommunication  DataType = "communication"
	DataTypeAccess         DataType = "access"
	DataTypeConsent        DataType = "consent"
	DataTypeEmergency      DataType = "emergency"
	DataTypeServiceHistory DataType = "service_history"
	DataTypeAgentState     DataType = "agent_state"
)

var validDataTypes = map[DataType]bool{
	DataTypeIdentity:       true,
	DataTypeShelter:        true,
	DataTypeHealth:         true,
	DataTypeCommunication:  true,
	DataTypeAccess:         true,
	DataTypeConsent:        true,
	DataTypeEmergency:      true,
	DataTypeServiceHistory: true,
	DataTypeAgentState:     true,
}

// ParseDataType constructs a DataType from external input. Call it at trust
// boundaries; direct casting bypasses the allowlist.
func ParseDataType(s string) (DataType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "data type cannot be empty")
	}
	dt := DataType(s)
	if !validDataTypes[dt] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid data type")
	}
	return dt, nil
}

func (dt DataType) IsValid() bool { return validDataTypes[dt] }

// ParsePrivacyLevel constructs a PrivacyLevel from external input. The empty
// string means "use the data type default" and is not an error here.
func ParsePrivacyLevel(s string) (PrivacyLevel, error) {
	if s == "" {
		return "", nil
	}
	pl := PrivacyLevel(s)
	if !validPrivacyLevels[pl] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid privacy level")
	}
	return pl, nil
}

func (dt DataType) String() string { return string(dt) }

// PrivacyLevel governs who may see a record and how it is stored.
type PrivacyLevel string

const (
	PrivacyPublic        PrivacyLevel = "public"
	PrivacyShared        PrivacyLevel = "shared"
	PrivacyPrivate       PrivacyLevel = "private"
	PrivacyEncrypted     PrivacyLevel = "encrypted"
	PrivacyZeroKnowledge PrivacyLevel = "zero_knowledge"
)

var validPrivacyLevels = map[PrivacyLevel]bool{
	PrivacyPublic:        true,
	PrivacyShared:        true,
	PrivacyPrivate:       true,
	PrivacyEncrypted:     true,
	PrivacyZeroKnowledge: true,
}

func (p PrivacyLevel) IsValid() bool { return validPrivacyLevels[p] }

// defaultPrivacy is the privacy level a record gets from its data type unless
// the caller overrides it at store time.
var defaultPrivacy = map[DataType]PrivacyLevel{
	DataTypeIdentity:       PrivacyPrivate,
	DataTypeShelter:        PrivacyShared,
	DataTypeHealth:         PrivacyEncrypted,
	DataTypeCommunication:  PrivacyPrivate,
	DataTypeAccess:         PrivacyShared,
	DataTypeConsent:        PrivacyShared,
	DataTypeEmergency:      PrivacyShared,
	DataTypeServiceHistory: PrivacyShared,
	DataTypeAgentState:     PrivacyZeroKnowledge,
}

// DefaultPrivacy returns the privacy level implied by the data type.
func DefaultPrivacy(dt DataType) PrivacyLevel {
	if p, ok := defaultPrivacy[dt]; ok {
		return p
	}
	return PrivacyPrivate
}

// LogAction is the kind of access recorded in a record's log.
type LogAction string

const (
	LogRead   LogAction = "read"
	LogWrite  LogAction = "write"
	LogDelete LogAction = "delete"
	LogShare  LogAction = "share"
)

// AccessLogEntry is one line of a record's append-only access log. Entries
// are never mutated or deleted.
type AccessLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Accessor   string    `json:"accessor"`
	Action     LogAction `json:"action"`
	Purpose    string    `json:"purpose"`
	Authorized bool      `json:"authorized"`
}

// UnifiedRecord is a versioned, typed, integrity-checked piece of an owner's
// data. Version increments on every write to the same (owner, dataType)
// logical record; IntegrityHash always equals the hash of Payload at write
// time, and any mismatch detected later is reported, never repaired.
type UnifiedRecord struct {
	ID            string           `json:"recordId"`
	OwnerID       string           `json:"ownerId"`
	DataType      DataType         `json:"dataType"`
	Payload       any              `json:"payload"`
	IntegrityHash string           `json:"integrityHash"`
	Version       int              `json:"version"`
	PrivacyLevel  PrivacyLevel     `json:"privacyLevel"`
	AccessLog     []AccessLogEntry `json:"accessLog"`
	CreatedAt     time.Time        `json:"createdAt"`
	LastUpdated   time.Time        `json:"lastUpdated"`
	// CrossRef links to a credential in the secondary store when one was
	// derived from this record.
	CrossRef string `json:"crossRef,omitempty"`
	// PendingSync marks records whose vault push has not been confirmed.
	PendingSync bool `json:"pendingSync"`
}

// View is what reads return: the record plus an integrity verdict computed at
// read time. Corrupted records are surfaced, never silently dropped or fixed.
type View struct {
	Record    UnifiedRecord `json:"record"`
	Corrupted bool          `json:"corrupted"`
}

// Filter narrows List results.
type Filter struct {
	From         *time.Time
	To           *time.Time
	PrivacyLevel PrivacyLevel
	Limit        int
	Offset       int
}
