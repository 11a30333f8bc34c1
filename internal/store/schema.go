package store

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS export_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    total INTEGER NOT NULL,
    error TEXT
);

CREATE TABLE IF NOT EXISTS exported_documents (
    uri TEXT PRIMARY KEY,
    doc_key TEXT NOT NULL UNIQUE,
    run_id INTEGER NOT NULL,
    package_name TEXT NOT NULL,
    label TEXT,
    version_code INTEGER,
    version_name TEXT,
    file_name TEXT NOT NULL,
    size_bytes INTEGER,
    checksum TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (run_id) REFERENCES export_runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_exported_run ON exported_documents(run_id);
CREATE INDEX IF NOT EXISTS idx_exported_package ON exported_documents(package_name);
`
