package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"news_provisioner/internal/domain"
)

type Config struct {
	Mongo        MongoConfig        `yaml:"mongo"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	LogLevel     string             `yaml:"log_level"`
}

type MongoConfig struct {
	URI              string        `yaml:"uri"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// LedgerConfig enables the Postgres run history when DSN is set.
type LedgerConfig struct {
	DSN string `yaml:"dsn"`
}

func (l LedgerConfig) Enabled() bool {
	return l.DSN != ""
}

// RabbitMQConfig enables schema events when URL is set.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

type ProvisioningConfig struct {
	Database    string           `yaml:"database"`
	Credential  CredentialConfig `yaml:"credential"`
	Collections []string         `yaml:"collections"`
	Indexes     []IndexConfig    `yaml:"indexes"`
}

type CredentialConfig struct {
	Username string       `yaml:"username"`
	Password string       `yaml:"password"`
	Roles    []RoleConfig `yaml:"roles"`
}

// RoleConfig grants Name on DB; an empty DB means the provisioned database.
type RoleConfig struct {
	Name string `yaml:"name"`
	DB   string `yaml:"db"`
}

type IndexConfig struct {
	Collection         string      `yaml:"collection"`
	Name               string      `yaml:"name"`
	Keys               []KeyConfig `yaml:"keys"`
	Unique             bool        `yaml:"unique"`
	ExpireAfterSeconds *int32      `yaml:"expire_after_seconds"`
}

type KeyConfig struct {
	Field string `yaml:"field"`
	Order int    `yaml:"order"`
}

// Spec converts the provisioning section into the domain schema.
func (p ProvisioningConfig) Spec() domain.Spec {
	spec := domain.Spec{
		Database: p.Database,
		Credential: domain.Credential{
			Username: p.Credential.Username,
			Password: p.Credential.Password,
		},
		Collections: append([]string(nil), p.Collections...),
	}

	for _, r := range p.Credential.Roles {
		db := r.DB
		if db == "" {
			db = p.Database
		}
		spec.Credential.Roles = append(spec.Credential.Roles, domain.Role{Name: r.Name, Database: db})
	}

	for _, idx := range p.Indexes {
		keys := make([]domain.IndexKey, len(idx.Keys))
		for i, k := range idx.Keys {
			order := domain.Order(k.Order)
			if k.Order == 0 {
				order = domain.Ascending
			}
			keys[i] = domain.IndexKey{Field: k.Field, Order: order}
		}
		spec.Indexes = append(spec.Indexes, domain.IndexSpec{
			Collection:         idx.Collection,
			Name:               idx.Name,
			Keys:               keys,
			Unique:             idx.Unique,
			ExpireAfterSeconds: idx.ExpireAfterSeconds,
		})
	}

	return spec
}

func (p ProvisioningConfig) empty() bool {
	return p.Database == "" && len(p.Collections) == 0 && len(p.Indexes) == 0
}

func provisioningFromSpec(spec domain.Spec) ProvisioningConfig {
	p := ProvisioningConfig{
		Database: spec.Database,
		Credential: CredentialConfig{
			Username: spec.Credential.Username,
			Password: spec.Credential.Password,
		},
		Collections: spec.Collections,
	}

	for _, r := range spec.Credential.Roles {
		p.Credential.Roles = append(p.Credential.Roles, RoleConfig{Name: r.Name, DB: r.Database})
	}
	for _, idx := range spec.Indexes {
		keys := make([]KeyConfig, len(idx.Keys))
		for i, k := range idx.Keys {
			keys[i] = KeyConfig{Field: k.Field, Order: int(k.Order)}
		}
		p.Indexes = append(p.Indexes, IndexConfig{
			Collection:         idx.Collection,
			Name:               idx.Name,
			Keys:               keys,
			Unique:             idx.Unique,
			ExpireAfterSeconds: idx.ExpireAfterSeconds,
		})
	}
	return p
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = 5 * time.Second
	}
	if c.Mongo.OperationTimeout == 0 {
		c.Mongo.OperationTimeout = 30 * time.Second
	}
	if c.Provisioning.empty() {
		// Only the credential name and password are taken from the file.
		news := domain.NewsPlatformSpec()
		news.Credential.Password = c.Provisioning.Credential.Password
		if c.Provisioning.Credential.Username != "" {
			news.Credential.Username = c.Provisioning.Credential.Username
		}
		c.Provisioning = provisioningFromSpec(news)
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "news_provisioner"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "schema.provisioned"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "schema_events"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
