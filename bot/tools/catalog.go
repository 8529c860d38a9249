// Package tools provides the external services the bot's flow steps call:
// the music catalogue database, SMS verification, lyric and video search,
// and the payment gateway.
package tools

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Track is a catalogue track with its album and artist.
type Track struct {
	ID        int     `json:"track_id"`
	Name      string  `json:"name"`
	Album     string  `json:"album"`
	Artist    string  `json:"artist"`
	UnitPrice float64 `json:"unit_price"`
}

// Contact is a customer's contact info.
type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Invoice is the record created for a completed purchase.
type Invoice struct {
	ID    int           `json:"invoice_id"`
	Total float64       `json:"total"`
	Lines []InvoiceLine `json:"lines"`
}

// InvoiceLine is a single purchased item on an invoice.
type InvoiceLine struct {
	TrackID   int     `json:"track_id"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// Catalog wraps the music store database (Chinook-style schema).
//
// All queries use parameter binding; no user input is interpolated into
// SQL text.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if needed) the catalogue database at path.
// Use ":memory:" for an ephemeral database. The schema is migrated and, if
// the catalogue is empty, seeded with the demo data set.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	c := &Catalog{db: db}
	if err := c.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	if err := c.seedIfEmpty(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS customers (
    customer_id INTEGER PRIMARY KEY,
    first_name  TEXT NOT NULL,
    last_name   TEXT NOT NULL,
    email       TEXT NOT NULL,
    phone       TEXT NOT NULL,
    address     TEXT NOT NULL DEFAULT '',
    city        TEXT NOT NULL DEFAULT '',
    country     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS artists (
    artist_id INTEGER PRIMARY KEY,
    name      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS albums (
    album_id  INTEGER PRIMARY KEY,
    title     TEXT NOT NULL,
    artist_id INTEGER NOT NULL REFERENCES artists(artist_id)
);
CREATE TABLE IF NOT EXISTS tracks (
    track_id   INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    album_id   INTEGER NOT NULL REFERENCES albums(album_id),
    unit_price REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS invoices (
    invoice_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id  INTEGER NOT NULL REFERENCES customers(customer_id),
    invoice_date TEXT NOT NULL,
    total        REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS invoice_lines (
    invoice_line_id INTEGER PRIMARY KEY AUTOINCREMENT,
    invoice_id      INTEGER NOT NULL REFERENCES invoices(invoice_id),
    track_id        INTEGER NOT NULL REFERENCES tracks(track_id),
    unit_price      REAL NOT NULL,
    quantity        INTEGER NOT NULL
);
`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// seedIfEmpty loads the demo data set on first open: one demo customer
// and a small slice of the music catalogue. "For Those About To Rock" is
// stocked; Jimi Hendrix is not carried at all.
func (c *Catalog) seedIfEmpty(ctx context.Context) error {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM artists").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO customers (customer_id, first_name, last_name, email, phone, address, city, country) VALUES
    (1, 'Luis', 'Goncalves', 'luisg@embraer.com.br', '+19144342859', 'Av. Brigadeiro Faria Lima, 2170', 'Sao Jose dos Campos', 'Brazil')`,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO artists (artist_id, name) VALUES
    (1, 'AC/DC'),
    (2, 'Queen'),
    (3, 'Led Zeppelin'),
    (4, 'Eagles'),
    (5, 'Deep Purple'),
    (6, 'Nirvana'),
    (7, 'Guns N'' Roses'),
    (8, 'The Police')`,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO albums (album_id, title, artist_id) VALUES
    (1, 'For Those About To Rock We Salute You', 1),
    (2, 'Let There Be Rock', 1),
    (3, 'A Night At The Opera', 2),
    (4, 'IV', 3),
    (5, 'Hotel California', 4),
    (6, 'Machine Head', 5),
    (7, 'Nevermind', 6),
    (8, 'Appetite For Destruction', 7),
    (9, 'Synchronicity', 8)`,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO tracks (track_id, name, album_id, unit_price) VALUES
    (1,    'For Those About To Rock (We Salute You)', 1, 0.99),
    (6,    'Put The Finger On You',                   1, 0.99),
    (15,   'Go Down',                                 2, 0.99),
    (16,   'Dog Eat Dog',                             2, 0.99),
    (17,   'Let There Be Rock',                       2, 0.99),
    (300,  'Bohemian Rhapsody',                       3, 0.99),
    (301,  'Love Of My Life',                         3, 0.99),
    (400,  'Stairway To Heaven',                      4, 0.99),
    (401,  'Black Dog',                               4, 0.99),
    (500,  'Hotel California',                        5, 0.99),
    (600,  'Smoke On The Water',                      6, 0.99),
    (700,  'Smells Like Teen Spirit',                 7, 0.99),
    (800,  'Sweet Child O'' Mine',                    8, 0.99),
    (900,  'Every Breath You Take',                   9, 0.99),
    (2269, 'Wrapped Around Your Finger',              9, 0.99)`,
	); err != nil {
		return err
	}

	return tx.Commit()
}

const trackSelect = `
SELECT tracks.track_id, tracks.name, albums.title, artists.name, tracks.unit_price
FROM tracks
JOIN albums ON tracks.album_id = albums.album_id
JOIN artists ON albums.artist_id = artists.artist_id`

// TrackByID looks up a track by its id. Returns nil when not found.
func (c *Catalog) TrackByID(ctx context.Context, trackID int) (*Track, error) {
	row := c.db.QueryRowContext(ctx, trackSelect+" WHERE tracks.track_id = ?", trackID)
	return scanTrack(row)
}

// FindTrackByTitleArtist finds a track by partial title and artist match.
// Returns nil when the catalogue has no matching track.
func (c *Catalog) FindTrackByTitleArtist(ctx context.Context, title, artist string) (*Track, error) {
	row := c.db.QueryRowContext(ctx,
		trackSelect+" WHERE tracks.name LIKE ? AND artists.name LIKE ? LIMIT 1",
		"%"+title+"%", "%"+artist+"%")
	return scanTrack(row)
}

// SearchTracksByTitle returns up to limit tracks whose title contains the
// given text.
func (c *Catalog) SearchTracksByTitle(ctx context.Context, title string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := c.db.QueryContext(ctx,
		trackSelect+" WHERE tracks.name LIKE ? ORDER BY tracks.name LIMIT ?",
		"%"+title+"%", limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tracks []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.Name, &t.Album, &t.Artist, &t.UnitPrice); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// CustomerContact returns the customer's email and phone.
func (c *Catalog) CustomerContact(ctx context.Context, customerID int) (Contact, error) {
	var contact Contact
	err := c.db.QueryRowContext(ctx,
		"SELECT email, phone FROM customers WHERE customer_id = ?", customerID).
		Scan(&contact.Email, &contact.Phone)
	if err == sql.ErrNoRows {
		return Contact{}, fmt.Errorf("customer %d not found", customerID)
	}
	return contact, err
}

// UpdateCustomerEmail changes the customer's email address.
func (c *Catalog) UpdateCustomerEmail(ctx context.Context, customerID int, email string) error {
	res, err := c.db.ExecContext(ctx,
		"UPDATE customers SET email = ? WHERE customer_id = ?", email, customerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("customer %d not found", customerID)
	}
	return nil
}

// AlreadyPurchased reports whether the customer has an invoice line for
// the track.
func (c *Catalog) AlreadyPurchased(ctx context.Context, customerID, trackID int) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM invoice_lines
JOIN invoices ON invoice_lines.invoice_id = invoices.invoice_id
WHERE invoices.customer_id = ? AND invoice_lines.track_id = ?`,
		customerID, trackID).Scan(&n)
	return n > 0, err
}

// CreateInvoice records a purchase of one track and returns the invoice.
func (c *Catalog) CreateInvoice(ctx context.Context, customerID, trackID int, unitPrice float64, qty int) (Invoice, error) {
	if qty <= 0 {
		qty = 1
	}
	total := unitPrice * float64(qty)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return Invoice{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO invoices (customer_id, invoice_date, total) VALUES (?, ?, ?)",
		customerID, time.Now().UTC().Format("2006-01-02 15:04:05"), total)
	if err != nil {
		return Invoice{}, err
	}
	invoiceID, err := res.LastInsertId()
	if err != nil {
		return Invoice{}, err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO invoice_lines (invoice_id, track_id, unit_price, quantity) VALUES (?, ?, ?, ?)",
		invoiceID, trackID, unitPrice, qty); err != nil {
		return Invoice{}, err
	}

	if err := tx.Commit(); err != nil {
		return Invoice{}, err
	}

	return Invoice{
		ID:    int(invoiceID),
		Total: total,
		Lines: []InvoiceLine{{TrackID: trackID, UnitPrice: unitPrice, Quantity: qty}},
	}, nil
}

func scanTrack(row *sql.Row) (*Track, error) {
	var t Track
	err := row.Scan(&t.ID, &t.Name, &t.Album, &t.Artist, &t.UnitPrice)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
