// Package secret stores the relay credentials and the HTTP report
// pre-shared secret (tSecretKey) outside the plaintext config file,
// adapted from the teacher's pkg/keyring.KeyringManager: try the OS
// keyring via github.com/zalando/go-keyring first, falling back to an
// AES-GCM-encrypted file keyring for headless servers where no OS keyring
// is available.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zalando/go-keyring"
)

// serviceName namespaces every entry this controller stores in the shared
// OS keyring so it never collides with another application's secrets.
const serviceName = "junctionctl"

// Manager provides a unified Set/Get/Delete surface over the OS keyring or,
// when unavailable, an encrypted file keyring.
type Manager struct {
	file    *fileKeyring
	useFile bool
}

// NewManager probes the OS keyring with a short-lived test entry; if that
// fails or times out, it falls back to the file keyring rooted at
// filePath, encrypted with masterPassword.
func NewManager(filePath, masterPassword string) *Manager {
	const testUser = "probe"
	done := make(chan error, 1)
	go func() {
		err := keyring.Set(serviceName, testUser, "probe-value")
		if err == nil {
			_ = keyring.Delete(serviceName, testUser)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			return &Manager{useFile: false}
		}
	case <-time.After(5 * time.Second):
	}

	return &Manager{file: newFileKeyring(filePath, masterPassword), useFile: true}
}

// Set stores a secret under (key, value) identified by name.
func (m *Manager) Set(name, value string) error {
	if !m.useFile {
		return keyring.Set(serviceName, name, value)
	}
	return m.file.Set(name, value)
}

// Get retrieves a previously stored secret.
func (m *Manager) Get(name string) (string, error) {
	if !m.useFile {
		return keyring.Get(serviceName, name)
	}
	return m.file.Get(name)
}

// Delete removes a stored secret.
func (m *Manager) Delete(name string) error {
	if !m.useFile {
		return keyring.Delete(serviceName, name)
	}
	return m.file.Delete(name)
}

// fileKeyring is an AES-GCM encrypted JSON file used when the OS keyring is
// unavailable (containers, headless servers).
type fileKeyring struct {
	path      string
	masterKey []byte
}

type fileEntry struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

func newFileKeyring(path, masterPassword string) *fileKeyring {
	_ = os.MkdirAll(filepath.Dir(path), 0o700)
	hash := sha256.Sum256([]byte(masterPassword))
	return &fileKeyring{path: path, masterKey: hash[:]}
}

func (fk *fileKeyring) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(fk.masterKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (fk *fileKeyring) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(fk.masterKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("secret: ciphertext too short")
	}
	nonce, body := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (fk *fileKeyring) load() (map[string]fileEntry, error) {
	entries := make(map[string]fileEntry)
	data, err := os.ReadFile(fk.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (fk *fileKeyring) save(entries map[string]fileEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(fk.path, data, 0o600)
}

func (fk *fileKeyring) Set(name, value string) error {
	entries, err := fk.load()
	if err != nil {
		return err
	}
	encrypted, err := fk.encrypt(value)
	if err != nil {
		return err
	}
	entries[name] = fileEntry{Name: name, Data: encrypted}
	return fk.save(entries)
}

func (fk *fileKeyring) Get(name string) (string, error) {
	entries, err := fk.load()
	if err != nil {
		return "", err
	}
	entry, ok := entries[name]
	if !ok {
		return "", fmt.Errorf("secret: entry %q not found", name)
	}
	return fk.decrypt(entry.Data)
}

func (fk *fileKeyring) Delete(name string) error {
	entries, err := fk.load()
	if err != nil {
		return err
	}
	delete(entries, name)
	return fk.save(entries)
}

// DefaultKeyringPath mirrors the teacher's GetDefaultKeyringPath, namespaced
// to this controller.
func DefaultKeyringPath() string {
	if path := os.Getenv("JUNCTIONCTL_KEYRING_PATH"); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/junctionctl-keyring.json"
	}
	return filepath.Join(homeDir, ".local", "share", "junctionctl", "keyring.json")
}
