package consent

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CurrentVersion identifies the consent-terms revision users accept.
const CurrentVersion = "1.2"

// Categories is the fixed consent taxonomy. Essential is always granted.
type Categories struct {
	Essential       bool `json:"essential"`
	Analytics       bool `json:"analytics"`
	Marketing       bool `json:"marketing"`
	Personalization bool `json:"personalization"`
	DataProcessing  bool `json:"data_processing"`
	DataSharing     bool `json:"data_sharing"`
}

type Record struct {
	UserID      string     `json:"userId"`
	Consents    Categories `json:"consents"`
	Version     string     `json:"consentVersion"`
	LastUpdated *time.Time `json:"lastUpdated"`
}

var ErrNotFound = errors.New("consent record not found")

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Get(ctx context.Context, userID string) (Record, error) {
	var rec Record
	rec.UserID = userID
	err := s.DB.QueryRow(ctx, `
    SELECT essential, analytics, marketing, personalization, data_processing, data_sharing,
           consent_version, updated_at
    FROM consent_records
    WHERE user_id = $1
  `, userID).Scan(
		&rec.Consents.Essential, &rec.Consents.Analytics, &rec.Consents.Marketing,
		&rec.Consents.Personalization, &rec.Consents.DataProcessing, &rec.Consents.DataSharing,
		&rec.Version, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Save overwrites the whole record; there is no partial merge.
func (s *Store) Save(ctx context.Context, userID string, consents Categories) error {
	consents.Essential = true
	_, err := s.DB.Exec(ctx, `
    INSERT INTO consent_records
      (user_id, essential, analytics, marketing, personalization, data_processing, data_sharing, consent_version, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
    ON CONFLICT (user_id) DO UPDATE
    SET essential = EXCLUDED.essential,
        analytics = EXCLUDED.analytics,
        marketing = EXCLUDED.marketing,
        personalization = EXCLUDED.personalization,
        data_processing = EXCLUDED.data_processing,
        data_sharing = EXCLUDED.data_sharing,
        consent_version = EXCLUDED.consent_version,
        updated_at = now()
  `, userID, consents.Essential, consents.Analytics, consents.Marketing,
		consents.Personalization, consents.DataProcessing, consents.DataSharing, CurrentVersion)
	return err
}
