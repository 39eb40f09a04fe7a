package interaction

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Source produces a rule document. Sources are read once at startup.
type Source interface {
	Name() string
	Load(ctx context.Context) (*Document, error)
}

// SourceOptions carries the collaborators a source location may need.
type SourceOptions struct {
	Pool       *pgxpool.Pool
	AWSRegion  string
	S3Endpoint string
}

// ParseSource resolves a RULES_SOURCE value:
//
//	builtin              the pack compiled into the binary
//	s3://bucket/key      a JSON document in S3
//	postgres             the rule tables in the main database
//	sqlite:<path>        a SQLite rule pack
//	anything else        a JSON document on disk
func ParseSource(ctx context.Context, location string, opts SourceOptions) (Source, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "" || location == "builtin":
		return builtinSource{}, nil
	case strings.HasPrefix(location, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("rules source %q: expected s3://bucket/key", location)
		}
		return NewS3Source(ctx, S3Config{Region: opts.AWSRegion, Endpoint: opts.S3Endpoint, Bucket: bucket, Key: key})
	case location == "postgres":
		if opts.Pool == nil {
			return nil, fmt.Errorf("rules source postgres: no database pool")
		}
		return NewPGSource(opts.Pool), nil
	case strings.HasPrefix(location, "sqlite:"):
		path := strings.TrimPrefix(location, "sqlite:")
		if path == "" {
			return nil, fmt.Errorf("rules source %q: missing path", location)
		}
		return NewSQLiteSource(path), nil
	default:
		return FileSource{Path: location}, nil
	}
}

// LoadRuleSet loads and validates the rules from src.
func LoadRuleSet(ctx context.Context, src Source) (*RuleSet, error) {
	doc, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules from %s: %w", src.Name(), err)
	}
	rs, err := NewRuleSet(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid rules from %s: %w", src.Name(), err)
	}
	return rs, nil
}

type builtinSource struct{}

func (builtinSource) Name() string { return "builtin" }

func (builtinSource) Load(context.Context) (*Document, error) {
	return BuiltinDocument(), nil
}

// FileSource reads a JSON rule document from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file " + s.Path }

func (s FileSource) Load(context.Context) (*Document, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeDocument(f)
}
