// Package vault caches a single login credential so a user who has logged in
// online before can be validated while the device is offline. Passwords are
// never stored; the vault keeps an argon2id hash and compares candidates in
// constant time.
package vault

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/logging"
	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/store"
)

// ErrMalformedHash reports a stored hash the vault cannot parse. It means
// the credential row is corrupt and should be replaced by a fresh online
// login.
var ErrMalformedHash = errors.New("malformed credential hash")

// argon2id parameters. Kept in the encoded hash, so they can change without
// invalidating previously stored credentials.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// OfflinePolicy decides whether a cached account may be used while offline.
// The policy is injected by the application; see AllowAll.
type OfflinePolicy func(email string) bool

// AllowAll permits offline login for any cached account.
func AllowAll(string) bool { return true }

// CredentialStore is the slice of the local store the vault needs.
type CredentialStore interface {
	PutCredential(ctx context.Context, c store.Credential) error
	Credential(ctx context.Context) (*store.Credential, error)
	DeleteCredential(ctx context.Context) error
}

// Vault validates logins against the single cached credential.
type Vault struct {
	creds  CredentialStore
	policy OfflinePolicy
	log    logging.Logger
}

// New builds a vault over the given credential storage. A nil policy
// permits every cached account.
func New(creds CredentialStore, policy OfflinePolicy, log logging.Logger) *Vault {
	if policy == nil {
		policy = AllowAll
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Vault{creds: creds, policy: policy, log: log}
}

// Store hashes the password and caches it with the profile, replacing any
// previously cached credential. Called after a successful online login.
func (v *Vault) Store(ctx context.Context, email string, password []byte, profile *models.Profile) error {
	salt := common.GenerateRandByteArray(saltLen)
	hash := argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	blob, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	return v.creds.PutCredential(ctx, store.Credential{
		Email:        normalizeEmail(email),
		PasswordHash: encodeHash(salt, hash),
		Profile:      blob,
	})
}

// Validate checks email and password against the cached credential and
// returns the cached profile on a match. A missing credential, a different
// email, a wrong password or a policy denial all yield (nil, nil); an error
// means storage or data trouble, never a failed validation.
func (v *Vault) Validate(ctx context.Context, email string, password []byte) (*models.Profile, error) {
	cred, err := v.creds.Credential(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	email = normalizeEmail(email)
	if cred.Email != email {
		return nil, nil
	}
	if !v.policy(email) {
		v.log.Info(ctx, "offline login denied by policy", "email", email)
		return nil, nil
	}

	salt, want, params, err := decodeHash(cred.PasswordHash)
	if err != nil {
		return nil, err
	}
	got := argon2.IDKey(password, salt, params.time, params.memory, params.threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(want, got) == 0 {
		return nil, nil
	}

	var profile models.Profile
	if err := json.Unmarshal(cred.Profile, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode cached profile: %w", err)
	}
	return &profile, nil
}

// Clear removes the cached credential, for example on logout.
func (v *Vault) Clear(ctx context.Context) error {
	return v.creds.DeleteCredential(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type hashParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

// encodeHash packs parameters, salt and hash into one string:
// argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>, base64 without padding.
func encodeHash(salt, hash []byte) string {
	return fmt.Sprintf("argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func decodeHash(encoded string) (salt, hash []byte, params hashParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return nil, nil, params, fmt.Errorf("%w: wrong shape", ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("%w: version: %s", ErrMalformedHash, parts[1])
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("%w: parameters: %s", ErrMalformedHash, parts[2])
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, nil, params, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("%w: hash: %v", ErrMalformedHash, err)
	}
	return salt, hash, params, nil
}
