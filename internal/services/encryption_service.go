package services

import (
	"errors"

	"parentseed/internal/crypto"
	"parentseed/internal/models"
)

// EncryptionService wraps the crypto cipher with domain-specific methods.
// Without keys it is a passthrough, which is how the server runs when
// ENCRYPTION_KEY is unset.
type EncryptionService struct {
	cipher  *crypto.Cipher
	indexer *crypto.BlindIndexer
}

// NewEncryptionService returns a service for the two keys, or a passthrough
// service when both are empty. Supplying only one of them is an error.
func NewEncryptionService(encryptionKey, blindIndexKey []byte) (*EncryptionService, error) {
	if len(encryptionKey) == 0 && len(blindIndexKey) == 0 {
		return &EncryptionService{}, nil
	}
	if len(encryptionKey) == 0 || len(blindIndexKey) == 0 {
		return nil, errors.New("encryption key and blind index key must be set together")
	}
	c, err := crypto.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	idx, err := crypto.NewBlindIndexer(blindIndexKey)
	if err != nil {
		return nil, err
	}
	return &EncryptionService{cipher: c, indexer: idx}, nil
}

// Enabled reports whether fields are actually encrypted.
func (s *EncryptionService) Enabled() bool { return s.cipher != nil }

// EmailBlindIndex is the lookup key stored next to the encrypted email. In
// passthrough mode it is the normalized address itself.
func (s *EncryptionService) EmailBlindIndex(email string) string {
	if s.indexer == nil {
		return email
	}
	return s.indexer.Index(email)
}

// EncryptUser encrypts the email and fills its blind index.
func (s *EncryptionService) EncryptUser(u *models.User) error {
	u.EmailBlindIndex = s.EmailBlindIndex(u.Email)
	if s.cipher == nil {
		return nil
	}
	email, err := s.cipher.Encrypt(u.Email)
	if err != nil {
		return err
	}
	u.Email = email
	return nil
}

func (s *EncryptionService) DecryptUser(u *models.User) error {
	if s.cipher == nil {
		return nil
	}
	email, err := s.cipher.Decrypt(u.Email)
	if err != nil {
		return err
	}
	u.Email = email
	return nil
}

// EncryptEntry encrypts content and advice before storing in DB
func (s *EncryptionService) EncryptEntry(e *models.JournalEntry) error {
	if s.cipher == nil {
		return nil
	}
	content, err := s.cipher.Encrypt(e.Content)
	if err != nil {
		return err
	}
	advice, err := s.cipher.Encrypt(e.AIAdvice)
	if err != nil {
		return err
	}
	e.Content, e.AIAdvice = content, advice
	return nil
}

// DecryptEntry decrypts content and advice after retrieving from DB
func (s *EncryptionService) DecryptEntry(e *models.JournalEntry) error {
	if s.cipher == nil {
		return nil
	}
	content, err := s.cipher.Decrypt(e.Content)
	if err != nil {
		return err
	}
	advice, err := s.cipher.Decrypt(e.AIAdvice)
	if err != nil {
		return err
	}
	e.Content, e.AIAdvice = content, advice
	return nil
}
