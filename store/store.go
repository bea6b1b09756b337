// Package store persists extracted dataset documents in SQLite, keeping a
// version trail per document. A document is identified by its id (or name)
// within a dataset; reloading an unchanged document is a no-op, and
// reloading a changed one pushes the previous payload onto its version
// history.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrDocumentNotFound indicates the requested document doesn't exist.
var ErrDocumentNotFound = errors.New("store: document not found")

// skipKeys are volatile per-load fields excluded from the content hash, so
// re-importing the same data under a new tag does not register as a change.
var skipKeys = map[string]struct{}{
	"dataset_tag":  {},
	"extracted_at": {},
	"content_hash": {},
	"versions":     {},
}

// datasetArrayKeys maps a dataset name to the array field of its payload
// file that holds the documents.
var datasetArrayKeys = map[string]string{
	"items":    "items",
	"monsters": "monsters",
	"skills":   "skills",
	"classes":  "classes",
	"buffs":    "buffs",
	"rewards":  "tables",
}

// Result counts what one load did.
type Result struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Version is one historical payload of a document.
type Version struct {
	DatasetTag  string          `json:"dataset_tag"`
	ExtractedAt string          `json:"extracted_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Document is a stored dataset row.
type Document struct {
	Dataset     string
	Identity    string
	ContentHash string
	DatasetTag  string
	ExtractedAt string
	Payload     json.RawMessage
	Versions    []Version
}

// Store handles SQLite storage for dataset documents.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	// Busy timeout for concurrent access.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		dataset TEXT NOT NULL,
		identity TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		dataset_tag TEXT NOT NULL,
		extracted_at TEXT NOT NULL DEFAULT '',
		payload JSON NOT NULL,
		versions JSON NOT NULL DEFAULT '[]',
		PRIMARY KEY (dataset, identity)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating documents table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		dataset_tag TEXT NOT NULL,
		extracted_at TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating snapshots table: %w", err)
	}

	return &Store{db: db, log: commonlog.GetLogger("romscript.store")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadFile imports the dataset payload file at path under tag.
func (s *Store) LoadFile(dataset, path, tag string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("store: %w", err)
	}
	return s.LoadPayload(dataset, data, tag)
}

// LoadPayload imports one rendered dataset payload under tag. The payload is
// either a JSON array of documents or an object whose dataset-named array
// field holds them.
func (s *Store) LoadPayload(dataset string, payload []byte, tag string) (Result, error) {
	docs, extractedAt, err := documentsOf(dataset, payload)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	for _, doc := range docs {
		doc["dataset_tag"] = tag
		if extractedAt != "" {
			if _, ok := doc["extracted_at"]; !ok {
				doc["extracted_at"] = extractedAt
			}
		}
		if err := s.upsert(dataset, doc, tag, &res); err != nil {
			return res, err
		}
	}
	s.log.Debugf("%s: inserted %d, updated %d, skipped %d", dataset, res.Inserted, res.Updated, res.Skipped)
	return res, nil
}

func (s *Store) upsert(dataset string, doc map[string]any, tag string, res *Result) error {
	identity := documentIdentity(doc)
	canonical, err := canonicalPayload(doc)
	if err != nil {
		return err
	}
	hash := contentHash(canonical)

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal document: %w", err)
	}
	extractedAt, _ := doc["extracted_at"].(string)

	var prevHash, prevTag, prevExtractedAt string
	var prevPayload, prevVersions []byte
	err = s.db.QueryRow(
		"SELECT content_hash, dataset_tag, extracted_at, payload, versions FROM documents WHERE dataset = ? AND identity = ?",
		dataset, identity,
	).Scan(&prevHash, &prevTag, &prevExtractedAt, &prevPayload, &prevVersions)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(
			"INSERT INTO documents (dataset, identity, content_hash, dataset_tag, extracted_at, payload, versions) VALUES (?, ?, ?, ?, ?, json(?), '[]')",
			dataset, identity, hash, tag, extractedAt, payload,
		)
		if err != nil {
			return fmt.Errorf("store: inserting document: %w", err)
		}
		res.Inserted++
		return nil
	case err != nil:
		return fmt.Errorf("store: querying document: %w", err)
	}

	if prevHash == hash {
		res.Skipped++
		return nil
	}

	// Changed: the previous payload becomes the newest version entry.
	var versions []Version
	if err := json.Unmarshal(prevVersions, &versions); err != nil {
		return fmt.Errorf("store: decoding version history: %w", err)
	}
	prevCanonical, err := canonicalRaw(prevPayload)
	if err != nil {
		return err
	}
	versions = append([]Version{{
		DatasetTag:  prevTag,
		ExtractedAt: prevExtractedAt,
		Payload:     prevCanonical,
	}}, versions...)
	versionsJSON, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("store: marshal version history: %w", err)
	}

	_, err = s.db.Exec(
		"UPDATE documents SET content_hash = ?, dataset_tag = ?, extracted_at = ?, payload = json(?), versions = json(?) WHERE dataset = ? AND identity = ?",
		hash, tag, extractedAt, payload, versionsJSON, dataset, identity,
	)
	if err != nil {
		return fmt.Errorf("store: updating document: %w", err)
	}
	res.Updated++
	return nil
}

// Get retrieves one document.
func (s *Store) Get(dataset, identity string) (Document, error) {
	doc := Document{Dataset: dataset, Identity: identity}
	var versions []byte
	err := s.db.QueryRow(
		"SELECT content_hash, dataset_tag, extracted_at, payload, versions FROM documents WHERE dataset = ? AND identity = ?",
		dataset, identity,
	).Scan(&doc.ContentHash, &doc.DatasetTag, &doc.ExtractedAt, (*[]byte)(&doc.Payload), &versions)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, dataset, identity)
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: querying document: %w", err)
	}
	if err := json.Unmarshal(versions, &doc.Versions); err != nil {
		return Document{}, fmt.Errorf("store: decoding version history: %w", err)
	}
	return doc, nil
}

// Identities lists the stored document identities of a dataset in sorted
// order.
func (s *Store) Identities(dataset string) ([]string, error) {
	rows, err := s.db.Query("SELECT identity FROM documents WHERE dataset = ? ORDER BY identity", dataset)
	if err != nil {
		return nil, fmt.Errorf("store: querying identities: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scanning identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkLatest records tag as the most recent loaded snapshot.
func (s *Store) MarkLatest(tag, extractedAt string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO snapshots (id, dataset_tag, extracted_at) VALUES ('latest', ?, ?)",
		tag, extractedAt,
	)
	if err != nil {
		return fmt.Errorf("store: marking latest snapshot: %w", err)
	}
	return nil
}

// Latest returns the tag recorded by MarkLatest, or "" when none is set.
func (s *Store) Latest() (string, error) {
	var tag string
	err := s.db.QueryRow("SELECT dataset_tag FROM snapshots WHERE id = 'latest'").Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: querying latest snapshot: %w", err)
	}
	return tag, nil
}

// documentsOf extracts the document list and the payload-level extraction
// timestamp from a rendered dataset file.
func documentsOf(dataset string, payload []byte) ([]map[string]any, string, error) {
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.UseNumber()

	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, "", fmt.Errorf("store: decoding %s payload: %w", dataset, err)
	}

	var raw []any
	var extractedAt string
	switch t := top.(type) {
	case []any:
		raw = t
	case map[string]any:
		extractedAt, _ = t["extracted_at"].(string)
		key, ok := datasetArrayKeys[dataset]
		if !ok {
			key = dataset
		}
		raw, _ = t[key].([]any)
	default:
		return nil, "", fmt.Errorf("store: %s payload holds no documents", dataset)
	}

	docs := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if doc, ok := entry.(map[string]any); ok {
			docs = append(docs, doc)
		}
	}
	return docs, extractedAt, nil
}

// documentIdentity keys a document by its id field, falling back to name
// and finally to the content hash for identity-free documents.
func documentIdentity(doc map[string]any) string {
	for _, field := range []string{"id", "name", "table"} {
		switch v := doc[field].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	canonical, err := canonicalPayload(doc)
	if err != nil {
		return ""
	}
	return contentHash(canonical)
}

// canonicalPayload serializes a document without its volatile fields, with
// object keys sorted so equal documents hash equally.
func canonicalPayload(doc map[string]any) ([]byte, error) {
	stable := make(map[string]any, len(doc))
	for k, v := range doc {
		if _, skip := skipKeys[k]; skip {
			continue
		}
		stable[k] = v
	}
	// encoding/json writes map keys in sorted order, which is exactly the
	// canonical form needed here.
	data, err := json.Marshal(stable)
	if err != nil {
		return nil, fmt.Errorf("store: canonical payload: %w", err)
	}
	return data, nil
}

// canonicalRaw re-canonicalizes a stored payload blob.
func canonicalRaw(payload []byte) (json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("store: decoding stored payload: %w", err)
	}
	return canonicalPayload(doc)
}

func contentHash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Datasets lists the dataset names with stored documents.
func (s *Store) Datasets() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT dataset FROM documents")
	if err != nil {
		return nil, fmt.Errorf("store: querying datasets: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: scanning dataset: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
