package document

import (
	"time"

	dErrors "custoda/pkg/domainerrors"
)

// AccessLevel orders what a grantee or token bearer may do with a document.
type AccessLevel string

const (
	LevelView     AccessLevel = "view"
	LevelDownload AccessLevel = "download"
	LevelEdit     AccessLevel = "edit"
	LevelFull     AccessLevel = "full"
)

var validLevels = map[AccessLevel]bool{
	LevelView:     true,
	LevelDownload: true,
	LevelEdit:     true,
	LevelFull:     true,
}

func ParseAccessLevel(s string) (AccessLevel, error) {
	l := AccessLevel(s)
	if !validLevels[l] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid access level")
	}
	return l, nil
}

func (l AccessLevel) IsValid() bool { return validLevels[l] }

// SharingMethod distinguishes direct grants from capability token issuance in
// the sharing history.
type SharingMethod string

const (
	MethodDirect SharingMethod = "direct"
	MethodToken  SharingMethod = "token"
)

// Metadata is the caller-supplied description of an upload.
type Metadata struct {
	FileName    string   `json:"fileName"`
	ContentType string   `json:"contentType"`
	Tags        []string `json:"tags,omitempty"`
	// PlainText disables encryption at rest; documents default to encrypted.
	PlainText bool `json:"plainText,omitempty"`
}

// Document is owner-scoped metadata over stored bytes. A document is owned by
// exactly one owner for its lifetime; ownership is not transferable.
type Document struct {
	ID             string                `json:"documentId"`
	OwnerID        string                `json:"ownerId"`
	FileName       string                `json:"fileName"`
	Size           int64                 `json:"size"`
	ContentType    string                `json:"contentType"`
	Tags           []string              `json:"tags,omitempty"`
	UploadedAt     time.Time             `json:"uploadedAt"`
	IsEncrypted    bool                  `json:"isEncrypted"`
	StorageRef     string                `json:"storageRef"`
	AccessRights   []DocumentAccessRight `json:"accessRights"`
	SharingHistory []SharingRecord       `json:"sharingHistory"`
}

// DocumentAccessRight is an explicit per-document grant. Terminal once
// revoked.
type DocumentAccessRight struct {
	ID        string      `json:"accessId"`
	GrantedTo string      `json:"grantedTo"`
	Level     AccessLevel `json:"accessLevel"`
	GrantedAt time.Time   `json:"grantedAt"`
	Expires   *time.Time  `json:"expires,omitempty"`
	IsActive  bool        `json:"isActive"`
	RevokedAt *time.Time  `json:"revokedAt,omitempty"`
	RevokedBy string      `json:"revokedBy,omitempty"`
	Conditions string     `json:"conditions,omitempty"`
}

// SharingRecord is one line of a document's sharing history. Both direct
// grants and token issuance append here; revocations of either kind update
// the same entry.
type SharingRecord struct {
	ID         string        `json:"sharingId"`
	SharedWith string        `json:"sharedWith"`
	Method     SharingMethod `json:"sharingMethod"`
	Level      AccessLevel   `json:"accessLevel"`
	SharedAt   time.Time     `json:"sharedAt"`
	RevokedAt  *time.Time    `json:"revokedAt,omitempty"`
	// AccessID or TokenID ties the entry to the grant it records.
	AccessID string `json:"accessId,omitempty"`
	TokenID  string `json:"tokenId,omitempty"`
	// AccessCount tracks bearer reads through the linked token.
	AccessCount int `json:"accessCount,omitempty"`
}
