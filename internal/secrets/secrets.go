// Package secrets resolves provider API keys from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

var ErrNotFound = errors.New("secret not found")

type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads secrets and caches them for ttl.
type AWSSecretsManager struct {
	client SecretsManagerAPI
	cache  map[string]*cachedSecret
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

func NewAWSSecretsManager(ctx context.Context, region string) (*AWSSecretsManager, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewAWSSecretsManagerWithClient(secretsmanager.NewFromConfig(cfg)), nil
}

func NewAWSSecretsManagerWithClient(client SecretsManagerAPI) *AWSSecretsManager {
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*cachedSecret),
		ttl:    5 * time.Minute,
		now:    time.Now,
	}
}

func (s *AWSSecretsManager) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if cached, ok := s.cache[name]; ok && s.now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		return cached.value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}

	value := aws.ToString(result.SecretString)

	s.mu.Lock()
	s.cache[name] = &cachedSecret{
		value:     value,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	return value, nil
}

func (s *AWSSecretsManager) SetCacheTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

func (s *AWSSecretsManager) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedSecret)
}

// GetJSON decodes the named secret into v.
func GetJSON(ctx context.Context, store Store, name string, v any) error {
	secret, err := store.GetSecret(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(secret), v); err != nil {
		return fmt.Errorf("decode secret %s: %w", name, err)
	}
	return nil
}

// ProviderKeys holds the upstream API keys used when models are executed.
type ProviderKeys struct {
	OpenAI    string `json:"openai_api_key"`
	Anthropic string `json:"anthropic_api_key"`
}

// LoadProviderKeys reads the JSON secret prefix+"providers". A missing secret
// yields empty keys.
func LoadProviderKeys(ctx context.Context, store Store, prefix string) (ProviderKeys, error) {
	var keys ProviderKeys
	err := GetJSON(ctx, store, prefix+"providers", &keys)
	if errors.Is(err, ErrNotFound) {
		return ProviderKeys{}, nil
	}
	return keys, err
}

// Merge fills keys missing from k with the ones from other.
func (k ProviderKeys) Merge(other ProviderKeys) ProviderKeys {
	if k.OpenAI == "" {
		k.OpenAI = other.OpenAI
	}
	if k.Anthropic == "" {
		k.Anthropic = other.Anthropic
	}
	return k
}

type InMemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		secrets: make(map[string]string),
	}
}

func (s *InMemoryStore) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.secrets[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}

func (s *InMemoryStore) SetSecret(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = value
}

func (s *InMemoryStore) DeleteSecret(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, name)
}
