package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

var recordRowColumns = []string{
	"id", "title", "short_description", "long_description", "owner", "partner", "data_source",
	"source_url", "region", "type_tags", "use_case_tags", "readiness_level", "adoption_level", "grassroots", "updated_at",
}

func newRepoWithMock(t *testing.T) (*CatalogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewCatalogRepository(db), mock, func() { _ = db.Close() }
}

func addRecordRow(rows *sqlmock.Rows, id int64, title string) *sqlmock.Rows {
	return rows.AddRow(
		id, title, "short", "long", "Owner Co", "", "", "", "east",
		[]byte(`["irrigation"]`), []byte(`["water"]`), 4, 2, true, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	)
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, short_description").
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 404)
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesTags(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title").
		WithArgs(int64(7)).
		WillReturnRows(addRecordRow(sqlmock.NewRows(recordRowColumns), 7, "Drip kit"))

	rec, err := repo.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if rec.Title != "Drip kit" || rec.ReadinessLevel != 4 || !rec.Grassroots {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.TypeTags) != 1 || rec.TypeTags[0] != "irrigation" || rec.UseCaseTags[0] != "water" {
		t.Fatalf("unexpected tags: %v %v", rec.TypeTags, rec.UseCaseTags)
	}
}

func TestGetByIDsKeepsRequestedOrderAndSkipsUnknown(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows(recordRowColumns)
	addRecordRow(rows, 1, "one")
	addRecordRow(rows, 3, "three")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1::bigint[])")).
		WithArgs("{3,99,1}").
		WillReturnRows(rows)

	got, err := repo.GetByIDs(context.Background(), []int64{3, 99, 1})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchFullTextBuildsModeQuery(t *testing.T) {
	tests := []struct {
		name string
		mode domain.MatchMode
		want string
	}{
		{name: "all", mode: domain.MatchAll, want: "drought & seed"},
		{name: "any", mode: domain.MatchAny, want: "drought | seed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, done := newRepoWithMock(t)
			defer done()

			mock.ExpectQuery(regexp.QuoteMeta("search_vector @@ to_tsquery('english', $1)")).
				WithArgs(tt.want, 200).
				WillReturnRows(addRecordRow(sqlmock.NewRows(recordRowColumns), 5, "Seed bank"))

			got, err := repo.SearchFullText(context.Background(), []string{"Drought", "seed!"}, tt.mode, 200)
			if err != nil {
				t.Fatalf("SearchFullText() error = %v", err)
			}
			if len(got) != 1 || got[0].ID != 5 {
				t.Fatalf("unexpected records: %+v", got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}

func TestSearchFullTextWithoutUsableTermsSkipsQuery(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	got, err := repo.SearchFullText(context.Background(), []string{"&|!"}, domain.MatchAny, 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchSubstringEscapesPatterns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("title ILIKE $1 OR short_description ILIKE $1")).
		WithArgs("%solar%", `%100\%%`, 50).
		WillReturnRows(addRecordRow(sqlmock.NewRows(recordRowColumns), 2, "Solar pump"))

	got, err := repo.SearchSubstring(context.Background(), []string{"solar", "100%"}, 50)
	if err != nil {
		t.Fatalf("SearchSubstring() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Solar pump" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchSubstringPropagatesErrors(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	errDB := errors.New("connection reset")
	mock.ExpectQuery("ILIKE").WillReturnError(errDB)

	if _, err := repo.SearchSubstring(context.Background(), []string{"pump"}, 50); !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestCommonTagTerms(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT word").
		WithArgs(0.5).
		WillReturnRows(sqlmock.NewRows([]string{"word"}).AddRow("agriculture").AddRow("farming"))

	got, err := repo.CommonTagTerms(context.Background(), 0.5)
	if err != nil {
		t.Fatalf("CommonTagTerms() error = %v", err)
	}
	if len(got) != 2 || got[0] != "agriculture" {
		t.Fatalf("unexpected terms: %v", got)
	}
}

func TestListIDs(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id FROM records").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	ids, err := repo.ListIDs(context.Background())
	if err != nil {
		t.Fatalf("ListIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[1] != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
