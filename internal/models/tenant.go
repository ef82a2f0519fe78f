package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// TenantKey identifies a (project, credential) pair. Only a hash of the
// credential is kept so the key can be persisted, logged and queued.
type TenantKey struct {
	ProjectID      string `json:"project_id"`
	CredentialHash string `json:"credential_hash"`
}

// NewTenantKey hashes the raw credential.
func NewTenantKey(projectID, credential string) TenantKey {
	sum := sha256.Sum256([]byte(credential))
	return TenantKey{
		ProjectID:      strings.TrimSpace(projectID),
		CredentialHash: hex.EncodeToString(sum[:]),
	}
}

// String is the storage and lock key.
func (k TenantKey) String() string {
	return k.ProjectID + ":" + k.CredentialHash
}

func (k TenantKey) IsZero() bool {
	return k.ProjectID == "" && k.CredentialHash == ""
}

func (k TenantKey) Validate() error {
	if k.ProjectID == "" {
		return errors.New("tenant: project id is required")
	}
	if strings.Contains(k.ProjectID, ":") {
		return errors.New("tenant: project id must not contain ':'")
	}
	if len(k.CredentialHash) != sha256.Size*2 {
		return errors.New("tenant: credential hash is malformed")
	}
	return nil
}

// ParseTenantKey reverses String.
func ParseTenantKey(s string) (TenantKey, error) {
	project, hash, ok := strings.Cut(s, ":")
	if !ok {
		return TenantKey{}, fmt.Errorf("tenant: malformed key %q", s)
	}
	k := TenantKey{ProjectID: project, CredentialHash: hash}
	if err := k.Validate(); err != nil {
		return TenantKey{}, err
	}
	return k, nil
}
