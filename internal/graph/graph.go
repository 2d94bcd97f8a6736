// Package graph keeps a small sqlite-backed entity graph: entities the
// assistant has seen (people, events, apps) and weighted co-occurrence
// links between them. Weights decay over time so stale associations
// fade out.
package graph

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/pkg/models"
)

// pruneEpsilon is the weight below which a decayed link is removed.
const pruneEpsilon = 0.05

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL DEFAULT '',
	weight REAL NOT NULL DEFAULT 1.0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS links (
	a TEXT NOT NULL,
	b TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 1.0,
	PRIMARY KEY (a, b)
);
CREATE INDEX IF NOT EXISTS idx_links_a ON links(a);
CREATE INDEX IF NOT EXISTS idx_links_b ON links(b);
`

// Entity is one node.
type Entity struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind,omitempty"`
	Weight float64 `json:"weight"`
}

// Neighbor is one linked entity with the link weight.
type Neighbor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Stats summarizes the graph.
type Stats struct {
	Entities int     `json:"entities"`
	Links    int     `json:"links"`
	AvgLink  float64 `json:"avg_link_weight"`
}

// Graph is the sqlite-backed store.
type Graph struct {
	mu     sync.Mutex
	db     *sql.DB
	events *bus.Bus
	logger *slog.Logger
}

// Option configures the graph.
type Option func(*Graph)

// WithBus publishes graph.entity_linked events.
func WithBus(events *bus.Bus) Option {
	return func(g *Graph) { g.events = events }
}

// WithLogger configures the graph logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Open opens (and migrates) the graph database at path.
func Open(path string, opts ...Option) (*Graph, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate graph db: %w", err)
	}
	g := &Graph{db: db, logger: slog.Default().With("component", "graph")}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Close closes the database.
func (g *Graph) Close() error { return g.db.Close() }

// Link records a co-occurrence between two entities, creating them as
// needed. Repeated links strengthen the edge. The pair is stored in
// canonical order so (a,b) and (b,a) share one row.
func (g *Graph) Link(ctx context.Context, a, b, kind string) error {
	if a == "" || b == "" || a == b {
		return fmt.Errorf("invalid entity pair (%q, %q)", a, b)
	}
	if b < a {
		a, b = b, a
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, name := range []string{a, b} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (name, kind, weight, created_at) VALUES (?, ?, 1.0, ?)
			ON CONFLICT(name) DO UPDATE SET weight = weight + 0.1`,
			name, kind, now); err != nil {
			return fmt.Errorf("upsert entity %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO links (a, b, weight) VALUES (?, ?, 1.0)
		ON CONFLICT(a, b) DO UPDATE SET weight = weight + 1.0`,
		a, b); err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link: %w", err)
	}

	if g.events != nil {
		g.events.Publish(ctx, models.NewEvent(models.EventGraphEntityLinked, "graph", map[string]any{
			"a":    a,
			"b":    b,
			"kind": kind,
		}))
	}
	return nil
}

// Stats returns entity and link counts.
func (g *Graph) Stats(ctx context.Context) (Stats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var stats Stats
	if err := g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&stats.Entities); err != nil {
		return Stats{}, fmt.Errorf("count entities: %w", err)
	}
	if err := g.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(weight), 0) FROM links`).Scan(&stats.Links, &stats.AvgLink); err != nil {
		return Stats{}, fmt.Errorf("count links: %w", err)
	}
	return stats, nil
}

// Search returns entities whose name contains the query, heaviest
// first.
func (g *Graph) Search(ctx context.Context, query string) ([]Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rows, err := g.db.QueryContext(ctx, `
		SELECT name, kind, weight FROM entities
		WHERE name LIKE '%' || ? || '%'
		ORDER BY weight DESC, name LIMIT 50`, query)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Name, &e.Kind, &e.Weight); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// Neighbors returns the entities linked to name, strongest link first.
func (g *Graph) Neighbors(ctx context.Context, name string) ([]Neighbor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rows, err := g.db.QueryContext(ctx, `
		SELECT CASE WHEN a = ? THEN b ELSE a END, weight
		FROM links WHERE a = ? OR b = ?
		ORDER BY weight DESC`, name, name, name)
	if err != nil {
		return nil, fmt.Errorf("select neighbors: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.Name, &n.Weight); err != nil {
			return nil, err
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// Decay multiplies every link weight by factor (0..1) and prunes the
// links that fall below the epsilon. Returns the number pruned.
func (g *Graph) Decay(ctx context.Context, factor float64) (int, error) {
	if !(factor > 0 && factor < 1) {
		return 0, fmt.Errorf("decay factor must be in (0, 1), got %v", factor)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin decay tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE links SET weight = weight * ?`, factor); err != nil {
		return 0, fmt.Errorf("decay links: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM links WHERE weight < ?`, pruneEpsilon)
	if err != nil {
		return 0, fmt.Errorf("prune links: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit decay: %w", err)
	}
	return int(pruned), nil
}
