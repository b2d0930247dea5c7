// Package dictionary resolves grammatical-element tokens against a Postgres
// grammar dictionary using pg_trgm similarity on the headword column.
//
// The lookup is strictly best-effort: any pool or query failure is logged and
// reported as an empty result, because missing dictionary context only lowers
// the quality of the second feedback prompt, it never blocks it.
package dictionary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NoExplanation is emitted when a matched row carries no descriptive fields.
const NoExplanation = "설명 정보가 없습니다."

// Info is one resolved dictionary entry for a grammatical-element token.
type Info struct {
	GrammarElement string `json:"grammar_element"`
	Explanation    string `json:"explanation"`
}

// DB is the subset of [pgxpool.Pool] the store needs. Satisfied by
// *pgxpool.Pool and by test fakes.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// lookupSQL matches the single best headword by trigram similarity. The %
// operator keeps the query on the gin_trgm_ops index.
const lookupSQL = `
SELECT headword, meaning, form_info, constraints, pos, topik
FROM grammar_items
WHERE headword % $1
ORDER BY similarity(headword, $1) DESC
LIMIT 1`

// Store performs dictionary lookups over a shared connection pool.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store on top of an established pool handle.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// NewPool builds the process-wide pgx pool for the grammar dictionary.
// Connections are established lazily on first acquire.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("dictionary: parse pool config: %w", err)
	}
	cfg.MinConns = 5
	cfg.MaxConns = 20
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dictionary: create pool: %w", err)
	}
	return pool, nil
}

// Lookup resolves each token to its closest dictionary entry. Tokens are
// trimmed, empties dropped, and duplicates removed keeping the first
// occurrence. Tokens without a similar headword are omitted from the result.
// All lookups of one call share a single transaction.
//
// Lookup never fails: on any pool or query error it logs and returns nil.
func (s *Store) Lookup(ctx context.Context, tokens []string) []Info {
	cleaned := normalizeTokens(tokens)
	if len(cleaned) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Warn("dictionary lookup unavailable", "error", err)
		return nil
	}
	// Rollback after a successful commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	var infos []Info
	for _, token := range cleaned {
		var headword string
		var meaning, form, constraints, pos, level *string
		err := tx.QueryRow(ctx, lookupSQL, token).
			Scan(&headword, &meaning, &form, &constraints, &pos, &level)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			s.logger.Warn("dictionary lookup failed", "token", token, "error", err)
			return nil
		}
		infos = append(infos, Info{
			GrammarElement: token,
			Explanation:    buildExplanation(meaning, form, constraints, pos, level),
		})
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Warn("dictionary lookup commit failed", "error", err)
		return nil
	}
	return infos
}

// normalizeTokens trims, drops empties, and dedupes preserving first
// occurrence.
func normalizeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	cleaned := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		cleaned = append(cleaned, t)
	}
	return cleaned
}

// buildExplanation concatenates the labeled non-null row fields in fixed
// order. A row with no descriptive fields yields [NoExplanation].
func buildExplanation(meaning, form, constraints, pos, level *string) string {
	var parts []string
	add := func(label string, v *string) {
		if v != nil && *v != "" {
			parts = append(parts, label+": "+*v)
		}
	}
	add("의미", meaning)
	add("형태", form)
	add("제약", constraints)
	add("품사", pos)
	add("등급", level)
	if len(parts) == 0 {
		return NoExplanation
	}
	return strings.Join(parts, " / ")
}
