package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS parties (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    short_name TEXT,
    slug TEXT UNIQUE NOT NULL,
    color TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS districts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    slug TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT UNIQUE NOT NULL,
    full_name TEXT NOT NULL,
    office TEXT NOT NULL CHECK (office IN ('president', 'vice-president', 'senator', 'deputy', 'andean-parliament')),
    party_id INTEGER NOT NULL REFERENCES parties(id),
    district_id INTEGER REFERENCES districts(id),
    national_id TEXT,
    birth_date TEXT,
    photo_url TEXT,
    education TEXT,
    experience TEXT,
    trajectory TEXT,
    assets TEXT,
    penal_sentences TEXT,
    civil_sentences TEXT,
    is_verified INTEGER NOT NULL DEFAULT 0,
    source TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (full_name, office),
    CHECK ((office IN ('senator', 'deputy')) = (district_id IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_candidates_national_id ON candidates(national_id);
CREATE INDEX IF NOT EXISTS idx_candidates_party ON candidates(party_id);

CREATE TABLE IF NOT EXISTS change_fingerprints (
    entity_type TEXT NOT NULL,
    entity_id INTEGER NOT NULL,
    source TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    last_checked_at TEXT NOT NULL,
    last_changed_at TEXT NOT NULL,
    PRIMARY KEY (entity_type, entity_id, source)
);

CREATE TABLE IF NOT EXISTS sync_jobs (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('started', 'running', 'completed', 'failed')),
    processed INTEGER NOT NULL DEFAULT 0,
    updated INTEGER NOT NULL DEFAULT 0,
    created INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    metadata TEXT,
    error_message TEXT,
    started_at TEXT NOT NULL,
    completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_jobs_source ON sync_jobs(source, started_at);

CREATE TABLE IF NOT EXISTS news_mentions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    author TEXT,
    title TEXT NOT NULL,
    body TEXT,
    url TEXT UNIQUE NOT NULL,
    published_at TEXT,
    candidate_id INTEGER REFERENCES candidates(id),
    party_id INTEGER REFERENCES parties(id),
    relevance REAL NOT NULL DEFAULT 0,
    sentiment TEXT NOT NULL DEFAULT 'neutral',
    keywords TEXT,
    entities TEXT,
    summary TEXT,
    topics TEXT,
    is_election_related INTEGER,
    analyzed_at TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_news_mentions_candidate ON news_mentions(candidate_id);

CREATE TABLE IF NOT EXISTS social_mentions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    platform TEXT NOT NULL,
    post_id TEXT NOT NULL,
    author TEXT,
    text TEXT NOT NULL,
    url TEXT NOT NULL,
    published_at TEXT,
    candidate_id INTEGER REFERENCES candidates(id),
    party_id INTEGER REFERENCES parties(id),
    relevance REAL NOT NULL DEFAULT 0,
    sentiment TEXT NOT NULL DEFAULT 'neutral',
    likes INTEGER NOT NULL DEFAULT 0,
    comments INTEGER NOT NULL DEFAULT 0,
    shares INTEGER NOT NULL DEFAULT 0,
    views INTEGER NOT NULL DEFAULT 0,
    hashtags TEXT,
    keywords TEXT,
    entities TEXT,
    summary TEXT,
    topics TEXT,
    is_election_related INTEGER,
    analyzed_at TEXT,
    created_at TEXT NOT NULL,
    UNIQUE (platform, post_id)
);

CREATE INDEX IF NOT EXISTS idx_social_mentions_candidate ON social_mentions(candidate_id);

CREATE TABLE IF NOT EXISTS mention_matches (
    mention_type TEXT NOT NULL CHECK (mention_type IN ('news', 'social')),
    mention_id INTEGER NOT NULL,
    entity_type TEXT NOT NULL CHECK (entity_type IN ('candidate', 'party')),
    entity_id INTEGER NOT NULL,
    relevance REAL NOT NULL,
    PRIMARY KEY (mention_type, mention_id, entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS ai_analysis_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_type TEXT NOT NULL CHECK (source_type IN ('news', 'social')),
    source_id INTEGER NOT NULL,
    priority INTEGER NOT NULL DEFAULT 5,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    processed_at TEXT,
    UNIQUE (source_type, source_id)
);

CREATE INDEX IF NOT EXISTS idx_ai_queue_status ON ai_analysis_queue(status, id);

CREATE TABLE IF NOT EXISTS flags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    candidate_id INTEGER NOT NULL REFERENCES candidates(id),
    type TEXT NOT NULL,
    severity TEXT NOT NULL CHECK (severity IN ('RED', 'AMBER', 'GRAY')),
    title TEXT NOT NULL,
    description TEXT,
    source TEXT NOT NULL,
    evidence_url TEXT NOT NULL DEFAULT '',
    is_verified INTEGER NOT NULL DEFAULT 0,
    captured_at TEXT NOT NULL,
    UNIQUE (candidate_id, type, source, evidence_url, title)
);

CREATE TABLE IF NOT EXISTS finance_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    external_id TEXT NOT NULL,
    party_id INTEGER REFERENCES parties(id),
    candidate_id INTEGER REFERENCES candidates(id),
    entity_name TEXT NOT NULL,
    period TEXT,
    category TEXT NOT NULL CHECK (category IN ('income', 'expense')),
    concept TEXT,
    amount REAL NOT NULL,
    currency TEXT NOT NULL DEFAULT 'PEN',
    contributor TEXT,
    reported_at TEXT,
    source_url TEXT,
    created_at TEXT NOT NULL,
    UNIQUE (source, external_id)
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
