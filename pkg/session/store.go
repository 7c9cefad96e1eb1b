// Package session persists per-user conversation history.
//
// A Store is selected once from Config: all three table settings select
// the DynamoDB backend, none selects the file backend, and any other
// combination selects a disabled backend that reads empty and drops writes.
// Every operation validates the user id before any I/O.
package session

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/playground/pkg/storage"
)

const (
	BackendFile     = "file"
	BackendDynamoDB = "dynamodb"
	BackendDisabled = "disabled"
)

// DefaultDir is where the file backend keeps records when no directory or
// bucket is configured.
const DefaultDir = "sessions"

// Store loads and saves histories keyed by user id.
type Store interface {
	// Load returns the history of userID, empty if none was saved.
	Load(ctx context.Context, userID string) (History, error)

	// Save replaces the history of userID.
	Save(ctx context.Context, userID string, h History) error

	// Backend names the active backend.
	Backend() string
}

// Config selects and configures the backend.
type Config struct {
	TableName   string `mapstructure:"table_name" yaml:"table_name,omitempty"`
	TableRegion string `mapstructure:"table_region" yaml:"table_region,omitempty"`
	PrimaryKey  string `mapstructure:"primary_key" yaml:"primary_key,omitempty"`

	// Dir is the local directory of the file backend.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`

	// Bucket switches the file backend to S3.
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// Kind returns the backend Config selects.
func (c Config) Kind() string {
	n := 0
	for _, v := range []string{c.TableName, c.TableRegion, c.PrimaryKey} {
		if v != "" {
			n++
		}
	}
	switch n {
	case 0:
		return BackendFile
	case 3:
		return BackendDynamoDB
	default:
		return BackendDisabled
	}
}

// Options carries collaborators for New. Zero values are filled from
// Config and the default AWS configuration.
type Options struct {
	Logger *slog.Logger

	// OnDegraded is called for every absorbed backend failure.
	OnDegraded func(*StorageError)

	// Files overrides the file backend storage.
	Files storage.FileStore

	// Dynamo overrides the DynamoDB client.
	Dynamo DynamoAPI
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) degraded(se *StorageError) {
	o.logger().Warn("session storage degraded", "error", se)
	if o.OnDegraded != nil {
		o.OnDegraded(se)
	}
}

// New builds the Store selected by cfg.
func New(ctx context.Context, cfg Config, opts Options) (Store, error) {
	log := opts.logger()
	switch cfg.Kind() {
	case BackendDynamoDB:
		client := opts.Dynamo
		if client == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.TableRegion))
			if err != nil {
				log.Error("session: aws config unavailable, history disabled", "table", cfg.TableName, "err", err)
				return newStore(newDisabled(log, "aws config: "+err.Error())), nil
			}
			client = dynamodb.NewFromConfig(awsCfg)
		}
		log.Info("session store", "backend", BackendDynamoDB, "table", cfg.TableName, "region", cfg.TableRegion)
		return newStore(&dynamoBackend{
			client:     client,
			table:      cfg.TableName,
			primaryKey: cfg.PrimaryKey,
			opts:       &opts,
		}), nil
	case BackendDisabled:
		return newStore(newDisabled(log, fmt.Sprintf(
			"partial table config: table_name=%q table_region=%q primary_key=%q",
			cfg.TableName, cfg.TableRegion, cfg.PrimaryKey,
		))), nil
	}

	files := opts.Files
	if files == nil {
		var err error
		files, err = newFileStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	log.Info("session store", "backend", BackendFile, "dir", cfg.Dir, "bucket", cfg.Bucket)
	return newStore(&fileBackend{files: files}), nil
}

func newFileStore(ctx context.Context, cfg Config) (storage.FileStore, error) {
	if cfg.Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("session: aws config: %w", err)
		}
		return storage.NewS3(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
	}
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir
	}
	local, err := storage.NewLocal(dir)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return local, nil
}

type backend interface {
	name() string
	load(ctx context.Context, userID string) (History, error)
	save(ctx context.Context, userID string, h History) error
}

// store gates every backend call behind ValidUserID.
type store struct {
	b backend
}

func newStore(b backend) *store {
	return &store{b: b}
}

func (s *store) Backend() string {
	return s.b.name()
}

func (s *store) Load(ctx context.Context, userID string) (History, error) {
	if !ValidUserID(userID) {
		return nil, invalidID(userID)
	}
	h, err := s.b.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = History{}
	}
	return h, nil
}

func (s *store) Save(ctx context.Context, userID string, h History) error {
	if !ValidUserID(userID) {
		return invalidID(userID)
	}
	if h == nil {
		h = History{}
	}
	return s.b.save(ctx, userID, h)
}
