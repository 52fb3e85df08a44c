package db

import (
	"time"
)

// Article maps links.articles. Bodies and section structure are owned by the
// publishing subsystem; this service reads them and writes back mutated HTML.
type Article struct {
	ArticleID    int64      `gorm:"column:article_id;primaryKey;autoIncrement"`
	ArticleUUID  string     `gorm:"column:article_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Slug         string     `gorm:"column:slug;type:text;not null"`
	Title        string     `gorm:"column:title;type:text;not null"`
	Keywords     string     `gorm:"column:keywords;type:text;not null;default:''"`
	PlainText    string     `gorm:"column:plain_text;type:text;not null;default:''"`
	HTMLBody     *string    `gorm:"column:html_body;type:text"`
	Status       string     `gorm:"column:status;type:links.article_status;not null;default:draft"`
	PublishAt    *time.Time `gorm:"column:publish_at;type:timestamptz"`
	Language     string     `gorm:"column:language;type:text;not null;default:und"`
	CanonicalURL *string    `gorm:"column:canonical_url;type:text"`
	DeletedAt    *time.Time `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "links.articles" }

// Chunk maps links.chunks. Rows are produced by the external corpus indexer
// and are immutable for a given article version.
type Chunk struct {
	ChunkID   int64     `gorm:"column:chunk_id;primaryKey;autoIncrement"`
	ChunkUUID string    `gorm:"column:chunk_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ArticleID int64     `gorm:"column:article_id;type:bigint;not null"`
	Seq       int       `gorm:"column:seq;type:integer;not null"`
	TextStart int       `gorm:"column:text_start;type:integer;not null"`
	TextEnd   int       `gorm:"column:text_end;type:integer;not null"`
	Text      string    `gorm:"column:text;type:text;not null"`
	Embedding *string   `gorm:"column:embedding;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Chunk) TableName() string { return "links.chunks" }

// InternalLink maps links.internal_links. Identity is
// (source_id, target_id, anchor_text); re-inserting it is a no-op.
type InternalLink struct {
	LinkID     int64     `gorm:"column:link_id;primaryKey;autoIncrement"`
	LinkUUID   string    `gorm:"column:link_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SourceID   int64     `gorm:"column:source_id;type:bigint;not null"`
	TargetID   int64     `gorm:"column:target_id;type:bigint;not null"`
	AnchorText string    `gorm:"column:anchor_text;type:text;not null"`
	TextStart  int       `gorm:"column:text_start;type:integer;not null"`
	TextEnd    int       `gorm:"column:text_end;type:integer;not null"`
	HTMLStart  int       `gorm:"column:html_start;type:integer;not null"`
	HTMLEnd    int       `gorm:"column:html_end;type:integer;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (InternalLink) TableName() string { return "links.internal_links" }

// LinkReservation maps links.link_reservations. A reservation is a transient
// claim on fairness budget, deleted on commit or abort and swept when stale.
type LinkReservation struct {
	ReservationID   int64     `gorm:"column:reservation_id;primaryKey;autoIncrement"`
	ReservationUUID string    `gorm:"column:reservation_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SourceID        int64     `gorm:"column:source_id;type:bigint;not null"`
	TargetID        int64     `gorm:"column:target_id;type:bigint;not null"`
	ReservedAt      time.Time `gorm:"column:reserved_at;type:timestamptz;not null;default:now()"`
}

func (LinkReservation) TableName() string { return "links.link_reservations" }

// HTMLHistory maps links.html_history. Each mutation appends the pre-mutation
// HTML so the external undo collaborator can restore it.
type HTMLHistory struct {
	HistoryID   int64     `gorm:"column:history_id;primaryKey;autoIncrement"`
	HistoryUUID string    `gorm:"column:history_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ArticleID   int64     `gorm:"column:article_id;type:bigint;not null"`
	HTMLBody    string    `gorm:"column:html_body;type:text;not null"`
	LinkUUID    *string   `gorm:"column:link_uuid;type:uuid"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (HTMLHistory) TableName() string { return "links.html_history" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&Chunk{},
		&InternalLink{},
		&LinkReservation{},
		&HTMLHistory{},
	}
}
