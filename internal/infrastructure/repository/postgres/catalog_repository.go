package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

const recordColumns = `id, title, short_description, long_description, owner, partner, data_source,
	source_url, region, type_tags, use_case_tags, readiness_level, adoption_level, grassroots, updated_at`

// CatalogRepository reads catalog records and serves the keyword retrieval
// stages (tsvector full-text and ILIKE substring scans).
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS records (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	short_description TEXT NOT NULL DEFAULT '',
	long_description TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL DEFAULT '',
	partner TEXT NOT NULL DEFAULT '',
	data_source TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	region TEXT NOT NULL DEFAULT '',
	type_tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	use_case_tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	readiness_level INT NOT NULL DEFAULT 0,
	adoption_level INT NOT NULL DEFAULT 0,
	grassroots BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	search_vector TSVECTOR GENERATED ALWAYS AS (
		to_tsvector('english', title || ' ' || short_description || ' ' || long_description)
	) STORED
);

CREATE INDEX IF NOT EXISTS idx_records_search_vector ON records USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CatalogRepository) GetByID(ctx context.Context, id int64) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", fmt.Errorf("record id=%d", id))
		}
		return nil, err
	}
	return &rec, nil
}

func (r *CatalogRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ANY($1::bigint[])`,
		int64ArrayLiteral(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("query records by ids: %w", err)
	}
	found, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]domain.Record, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
	}
	out := make([]domain.Record, 0, len(found))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, rec)
	}
	return out, nil
}

func (r *CatalogRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record ids: %w", err)
	}
	return ids, nil
}

func (r *CatalogRepository) CommonTagTerms(ctx context.Context, minShare float64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT word
FROM (
	SELECT DISTINCT r.id, lower(w.word) AS word
	FROM records r,
		jsonb_array_elements_text(r.type_tags || r.use_case_tags) AS tag,
		regexp_split_to_table(tag, '[^[:alnum:]]+') AS w(word)
) words
WHERE length(word) >= 3
GROUP BY word
HAVING count(*) >= $1 * (SELECT count(*) FROM records)
ORDER BY word
`, minShare)
	if err != nil {
		return nil, fmt.Errorf("query common tag terms: %w", err)
	}
	defer rows.Close()

	terms := make([]string, 0)
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scan common tag term: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate common tag terms: %w", err)
	}
	return terms, nil
}

// SearchFullText matches terms against the english tsvector of title and
// descriptions, all terms in MatchAll mode and any of them in MatchAny mode.
func (r *CatalogRepository) SearchFullText(ctx context.Context, terms []string, mode domain.MatchMode, limit int) ([]domain.Record, error) {
	query := buildTSQuery(terms, mode)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM records
WHERE search_vector @@ to_tsquery('english', $1)
ORDER BY ts_rank(search_vector, to_tsquery('english', $1)) DESC, id
LIMIT $2
`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	return scanRecords(rows)
}

// SearchSubstring returns records whose title or descriptions contain any
// token, case-insensitively.
func (r *CatalogRepository) SearchSubstring(ctx context.Context, tokens []string, limit int) ([]domain.Record, error) {
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens)+1)
	for _, token := range tokens {
		args = append(args, "%"+escapeLike(token)+"%")
		p := "$" + strconv.Itoa(len(args))
		conds = append(conds, fmt.Sprintf("title ILIKE %[1]s OR short_description ILIKE %[1]s OR long_description ILIKE %[1]s", p))
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+strings.Join(conds, " OR ")+
			` ORDER BY id LIMIT $`+strconv.Itoa(len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.Record, error) {
	var rec domain.Record
	var typeTagsRaw, useCaseTagsRaw []byte
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.ShortDescription, &rec.LongDescription, &rec.Owner, &rec.Partner, &rec.DataSource,
		&rec.SourceURL, &rec.Region, &typeTagsRaw, &useCaseTagsRaw, &rec.ReadinessLevel, &rec.AdoptionLevel,
		&rec.Grassroots, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Record{}, err
		}
		return domain.Record{}, fmt.Errorf("scan record: %w", err)
	}
	if rec.TypeTags, err = decodeTags(typeTagsRaw); err != nil {
		return domain.Record{}, fmt.Errorf("unmarshal type tags: %w", err)
	}
	if rec.UseCaseTags, err = decodeTags(useCaseTagsRaw); err != nil {
		return domain.Record{}, fmt.Errorf("unmarshal use case tags: %w", err)
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]domain.Record, error) {
	defer rows.Close()
	out := make([]domain.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func decodeTags(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// buildTSQuery joins lexemes with & or |. Anything that is not a letter or
// digit is dropped so user text never reaches tsquery syntax.
func buildTSQuery(terms []string, mode domain.MatchMode) string {
	op := " | "
	if mode == domain.MatchAll {
		op = " & "
	}
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, term)
		if clean != "" {
			parts = append(parts, clean)
		}
	}
	return strings.Join(parts, op)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func int64ArrayLiteral(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
