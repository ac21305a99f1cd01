// Package vault implements the encrypted credential store.
//
// The store is a SQLite database whose secret columns are Fernet tokens.
// The envelope key is derived from the vault password with
// PBKDF2-HMAC-SHA256 and lives only in memory between Unlock and Lock.
// A single unlock decrypts the full credential map; lookups afterward
// are O(1) and hit no crypto.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fernet/fernet-go"
	_ "modernc.org/sqlite"

	"github.com/velocitylabs/vcollect/types"
)

// Credential is a decrypted secret. Instances exist only inside an
// unlocked vault session; Lock scrubs them.
type Credential struct {
	ID       int64
	Name     string
	Username string

	// Password is the plaintext login password; may be empty when key
	// auth is used.
	Password string

	// PrivateKey is a PEM-encoded private key; may be empty.
	PrivateKey string

	// Passphrase unlocks PrivateKey when the key itself is encrypted.
	Passphrase string

	IsDefault bool
}

// HasSecret reports whether at least one of password or key is present.
func (c *Credential) HasSecret() bool {
	return c.Password != "" || c.PrivateKey != ""
}

// Info is the non-secret view of a credential, safe to list while locked.
type Info struct {
	ID        int64
	Name      string
	Username  string
	IsDefault bool
	HasKey    bool
}

// Vault is the credential store session.
type Vault struct {
	db   *sql.DB
	path string

	mu    sync.RWMutex
	key   *fernet.Key
	creds map[int64]*Credential
}

// Open opens (or creates) the vault database at path and applies the
// schema. The vault starts locked.
func Open(path string) (*Vault, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vault db %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply vault schema: %w", err)
	}
	return &Vault{db: db, path: path}, nil
}

// Close locks the vault and releases the database handle.
func (v *Vault) Close() error {
	v.Lock()
	return v.db.Close()
}

// IsInitialized reports whether the metadata row exists.
func (v *Vault) IsInitialized(ctx context.Context) (bool, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vault_metadata`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check vault metadata: %w", err)
	}
	return n > 0, nil
}

// Initialize creates the metadata row for a new vault and unlocks it.
// Fails if the vault already has metadata.
func (v *Vault) Initialize(ctx context.Context, password string) error {
	initialized, err := v.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if initialized {
		return fmt.Errorf("vault at %s is already initialized", v.path)
	}
	if password == "" {
		return fmt.Errorf("vault password must not be empty")
	}

	salt, err := newSalt()
	if err != nil {
		return err
	}

	_, err = v.db.ExecContext(ctx,
		`INSERT INTO vault_metadata (id, salt, verifier, kdf_iterations) VALUES (1, ?, ?, ?)`,
		salt, deriveVerifier(password, salt), kdfIterations)
	if err != nil {
		return fmt.Errorf("write vault metadata: %w", err)
	}

	return v.Unlock(ctx, password)
}

// Unlock derives the envelope key, checks the verifier, and decrypts the
// credential map into memory.
func (v *Vault) Unlock(ctx context.Context, password string) error {
	var salt []byte
	var verifier string
	err := v.db.QueryRowContext(ctx,
		`SELECT salt, verifier FROM vault_metadata WHERE id = 1`).Scan(&salt, &verifier)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("vault at %s is not initialized", v.path)
	}
	if err != nil {
		return fmt.Errorf("read vault metadata: %w", err)
	}

	if !verifierMatches(password, salt, verifier) {
		return types.ErrVaultBadPassword
	}

	key := deriveKey(password, salt)
	creds, err := v.loadCredentials(ctx, key)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.key = key
	v.creds = creds
	v.mu.Unlock()
	return nil
}

// UnlockFromEnv unlocks using the password in envVar. The environment
// fallback is a configured choice for unattended runs, not a default.
func (v *Vault) UnlockFromEnv(ctx context.Context, envVar string) error {
	password, ok := os.LookupEnv(envVar)
	if !ok || password == "" {
		return fmt.Errorf("%w: %s is not set", types.ErrVaultLocked, envVar)
	}
	return v.Unlock(ctx, password)
}

// Lock scrubs the key and every decrypted credential from memory.
// After Lock, no reachable data structure holds secret material.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.key != nil {
		for i := range v.key {
			v.key[i] = 0
		}
		v.key = nil
	}
	for _, c := range v.creds {
		c.Password = ""
		c.PrivateKey = ""
		c.Passphrase = ""
	}
	v.creds = nil
}

// IsLocked reports whether decrypted material is unavailable.
func (v *Vault) IsLocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.key == nil
}

func (v *Vault) loadCredentials(ctx context.Context, key *fernet.Key) (map[int64]*Credential, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT id, name, username,
		       COALESCE(password_encrypted, ''),
		       COALESCE(private_key_encrypted, ''),
		       COALESCE(passphrase_encrypted, ''),
		       is_default
		  FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	creds := make(map[int64]*Credential)
	for rows.Next() {
		var c Credential
		var passTok, keyTok, phraseTok string
		var isDefault int
		if err := rows.Scan(&c.ID, &c.Name, &c.Username,
			&passTok, &keyTok, &phraseTok, &isDefault); err != nil {
			return nil, fmt.Errorf("scan credential row: %w", err)
		}
		c.IsDefault = isDefault != 0

		if c.Password, err = decrypt(key, passTok); err != nil {
			return nil, fmt.Errorf("credential %s: %w", c.Name, err)
		}
		if c.PrivateKey, err = decrypt(key, keyTok); err != nil {
			return nil, fmt.Errorf("credential %s: %w", c.Name, err)
		}
		if c.Passphrase, err = decrypt(key, phraseTok); err != nil {
			return nil, fmt.Errorf("credential %s: %w", c.Name, err)
		}

		creds[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential rows: %w", err)
	}
	return creds, nil
}

// CredentialByID returns a decrypted credential from the session cache.
func (v *Vault) CredentialByID(id int64) (*Credential, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.key == nil {
		return nil, types.ErrVaultLocked
	}
	c, ok := v.creds[id]
	if !ok {
		return nil, fmt.Errorf("credential %d: %w", id, types.ErrNoCredential)
	}
	return c, nil
}

// DefaultCredential returns the store default, if one is marked.
func (v *Vault) DefaultCredential() (*Credential, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.key == nil {
		return nil, types.ErrVaultLocked
	}
	for _, c := range v.creds {
		if c.IsDefault {
			return c, nil
		}
	}
	return nil, types.ErrNoCredential
}

// Credentials returns every decrypted credential, ordered by id. Used by
// the discovery engine as the full candidate set.
func (v *Vault) Credentials() ([]*Credential, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.key == nil {
		return nil, types.ErrVaultLocked
	}
	out := make([]*Credential, 0, len(v.creds))
	for _, c := range v.creds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// List returns non-secret credential info rows; works while locked.
func (v *Vault) List(ctx context.Context) ([]Info, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT id, name, username, is_default,
		       COALESCE(private_key_encrypted, '') <> ''
		  FROM credentials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var isDefault int
		var hasKey bool
		if err := rows.Scan(&info.ID, &info.Name, &info.Username, &isDefault, &hasKey); err != nil {
			return nil, fmt.Errorf("scan credential info: %w", err)
		}
		info.IsDefault = isDefault != 0
		info.HasKey = hasKey
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Add encrypts and stores a credential; requires an unlocked vault.
// Marking a credential default clears any previous default.
func (v *Vault) Add(ctx context.Context, c *Credential) (int64, error) {
	v.mu.RLock()
	key := v.key
	v.mu.RUnlock()
	if key == nil {
		return 0, types.ErrVaultLocked
	}
	if c.Name == "" || c.Username == "" {
		return 0, fmt.Errorf("credential name and username are required")
	}
	if !c.HasSecret() {
		return 0, fmt.Errorf("credential %s: password or private key required", c.Name)
	}

	passTok, err := encrypt(key, c.Password)
	if err != nil {
		return 0, err
	}
	keyTok, err := encrypt(key, c.PrivateKey)
	if err != nil {
		return 0, err
	}
	phraseTok, err := encrypt(key, c.Passphrase)
	if err != nil {
		return 0, err
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin credential insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE credentials SET is_default = 0`); err != nil {
			return 0, fmt.Errorf("clear previous default: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO credentials
		    (name, username, password_encrypted, private_key_encrypted,
		     passphrase_encrypted, is_default)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Username, passTok, keyTok, phraseTok, boolToInt(c.IsDefault))
	if err != nil {
		return 0, fmt.Errorf("insert credential %s: %w", c.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credential insert: %w", err)
	}

	stored := *c
	stored.ID = id
	v.mu.Lock()
	if v.creds != nil {
		if stored.IsDefault {
			for _, existing := range v.creds {
				existing.IsDefault = false
			}
		}
		v.creds[id] = &stored
	}
	v.mu.Unlock()

	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
