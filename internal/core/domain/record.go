package domain

import "time"

// Record is a catalog entry. The search core only reads records.
type Record struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	ShortDescription string    `json:"shortDescription"`
	LongDescription  string    `json:"longDescription"`
	Owner            string    `json:"owner,omitempty"`
	Partner          string    `json:"partner,omitempty"`
	DataSource       string    `json:"dataSource,omitempty"`
	SourceURL        string    `json:"sourceUrl,omitempty"`
	Region           string    `json:"region,omitempty"`
	TypeTags         []string  `json:"typeTags"`
	UseCaseTags      []string  `json:"useCaseTags"`
	ReadinessLevel   int       `json:"readinessLevel"`
	AdoptionLevel    int       `json:"adoptionLevel"`
	Grassroots       bool      `json:"grassroots"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Labels are derived descriptive attributes of a record.
type Labels struct {
	Cost       Level `json:"cost"`
	Complexity Level `json:"complexity"`
}

// EnrichedRecord is a record as returned to search clients.
type EnrichedRecord struct {
	Record
	CostLabel       Level `json:"costLabel"`
	ComplexityLabel Level `json:"complexityLabel"`
	MatchScore      int   `json:"matchScore"`
}
