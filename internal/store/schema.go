package store

// schemaSQL is the minimal embedded DDL needed for the store to be
// self-standing in tests and in a fresh deployment. Versioned schema
// migration tooling is out of scope (SPEC_FULL.md §1/§12); this is
// applied idempotently with CREATE TABLE IF NOT EXISTS at startup.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS patient (
	id         TEXT PRIMARY KEY,
	auto_id    BIGSERIAL UNIQUE NOT NULL,
	name       TEXT NOT NULL,
	anon_name  TEXT UNIQUE
);

CREATE TABLE IF NOT EXISTS study (
	uid              TEXT PRIMARY KEY,
	patient_id       TEXT NOT NULL REFERENCES patient(id),
	acquisition_date TIMESTAMPTZ,
	anon_uid         TEXT
);
CREATE INDEX IF NOT EXISTS idx_study_patient ON study(patient_id);

CREATE TABLE IF NOT EXISTS series (
	uid         TEXT PRIMARY KEY,
	study_uid   TEXT NOT NULL REFERENCES study(uid) ON DELETE CASCADE,
	number      INTEGER NOT NULL,
	description TEXT,
	anon_uid    TEXT
);
CREATE INDEX IF NOT EXISTS idx_series_study ON series(study_uid);

CREATE TABLE IF NOT EXISTS recordtype (
	name          TEXT PRIMARY KEY,
	description   TEXT,
	label         TEXT,
	data_schema   JSONB,
	level         TEXT NOT NULL,
	role          TEXT,
	min_users     INTEGER,
	max_users     INTEGER,
	input_files   JSONB,
	output_files  JSONB,
	slicer_script TEXT,
	slicer_script_args JSONB,
	slicer_result_validator_args JSONB
);

CREATE TABLE IF NOT EXISTS "user" (
	id            TEXT PRIMARY KEY,
	email         TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT true,
	is_superuser  BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS userrole (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS userroleslink (
	user_id   TEXT NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
	role_name TEXT NOT NULL REFERENCES userrole(name) ON DELETE CASCADE,
	PRIMARY KEY (user_id, role_name)
);

CREATE TABLE IF NOT EXISTS record (
	id               BIGSERIAL PRIMARY KEY,
	patient_id       TEXT NOT NULL REFERENCES patient(id),
	study_uid        TEXT REFERENCES study(uid) ON DELETE CASCADE,
	series_uid       TEXT REFERENCES series(uid) ON DELETE CASCADE,
	record_type_name TEXT NOT NULL REFERENCES recordtype(name),
	user_id          TEXT REFERENCES "user"(id),
	status           TEXT NOT NULL,
	data             JSONB NOT NULL DEFAULT '{}',
	files            JSONB NOT NULL DEFAULT '{}',
	context_info     TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	changed_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_record_patient ON record(patient_id);
CREATE INDEX IF NOT EXISTS idx_record_study ON record(study_uid);
CREATE INDEX IF NOT EXISTS idx_record_series ON record(series_uid);
CREATE INDEX IF NOT EXISTS idx_record_type ON record(record_type_name);

CREATE TABLE IF NOT EXISTS accesstoken (
	token       TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_access TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL,
	ip_address  TEXT,
	user_agent  TEXT
);
CREATE INDEX IF NOT EXISTS idx_accesstoken_user ON accesstoken(user_id);
CREATE INDEX IF NOT EXISTS idx_accesstoken_expires ON accesstoken(expires_at);
`
