package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Store Badger 加密 KV，用于保存登录凭证。
// 加密由 Badger 选项（value log + key registry）提供。
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil 时不加密（不推荐）
	ReadOnly      bool
}

var errNotOpened = errors.New("secretstore: not opened")

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求开启 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20) // 100MB
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeKey(key string) ([]byte, error) {
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return nil, errors.New("secretstore: key is empty")
	}
	return k, nil
}

// GetString 读取字符串；第二个返回值区分不存在和空值
func (s *Store) GetString(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return "", false, err
	}
	var out string
	found := false
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

func (s *Store) SetString(key string, val string) error {
	if s == nil || s.db == nil {
		return errNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	v := []byte(val)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

// Delete 删除键，键不存在时不报错
func (s *Store) Delete(key string) error {
	if s == nil || s.db == nil {
		return errNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// Keys 列出指定前缀的所有键
func (s *Store) Keys(prefix string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errNotOpened
	}
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return out, err
}

// Credentials 某个交易环境的登录凭证
type Credentials struct {
	User         string
	Password     string
	ClientID     string
	ClientSecret string
}

// 凭证在库中的键名：fxcm/<env>/<field>
const (
	fieldUser         = "user"
	fieldPassword     = "password"
	fieldClientID     = "client_id"
	fieldClientSecret = "client_secret"
)

// CredentialKey 返回某环境某字段的键名
func CredentialKey(env, field string) string {
	return "fxcm/" + strings.TrimSpace(env) + "/" + field
}

// SaveCredentials 保存凭证，空字段跳过
func (s *Store) SaveCredentials(env string, c Credentials) error {
	for field, val := range map[string]string{
		fieldUser:         c.User,
		fieldPassword:     c.Password,
		fieldClientID:     c.ClientID,
		fieldClientSecret: c.ClientSecret,
	} {
		if val == "" {
			continue
		}
		if err := s.SetString(CredentialKey(env, field), val); err != nil {
			return fmt.Errorf("secretstore: save %s: %w", field, err)
		}
	}
	return nil
}

// LoadCredentials 读取凭证；user 或 password 缺失时 found 为 false
func (s *Store) LoadCredentials(env string) (Credentials, bool, error) {
	var c Credentials
	targets := []struct {
		field string
		dst   *string
	}{
		{fieldUser, &c.User},
		{fieldPassword, &c.Password},
		{fieldClientID, &c.ClientID},
		{fieldClientSecret, &c.ClientSecret},
	}
	for _, t := range targets {
		v, _, err := s.GetString(CredentialKey(env, t.field))
		if err != nil {
			return Credentials{}, false, err
		}
		*t.dst = v
	}
	return c, c.User != "" && c.Password != "", nil
}

// ParseKey 接受 32 字节的 base64 或 hex 编码；空输入返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// hex 优先，避免 64 位 hex 串被当作 base64 解析
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
