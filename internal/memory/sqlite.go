package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kindred-ai/kindred/internal/budget"
)

const createMemoryTableSQL = `
CREATE TABLE IF NOT EXISTS memories (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    session_id TEXT DEFAULT '',
    content    TEXT NOT NULL,
    domains    TEXT DEFAULT '[]',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at);
`

// retrievalShare divides the allocator's remaining budget to cap how many
// tokens retrieval may spend: recalled context gets at most a quarter of
// what is left.
const retrievalShare = 4

// domainBonus is the score added when a memory's domains overlap the
// persona's expertise domains.
const domainBonus = 2

// DefaultDBPath returns the standard database location, creating its parent
// directory.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".local", "share", "kindred")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return filepath.Join(dir, "kindred.db"), nil
}

// OpenDB opens the shared SQLite database. The mood store reuses this
// handle.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// SQLiteStore implements Service backed by SQLite keyword retrieval.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a memory store using an existing SQLite DB
// connection. The memories table is created if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(createMemoryTableSQL); err != nil {
		return nil, fmt.Errorf("create memories table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

var _ Service = (*SQLiteStore)(nil)

// Add stores a new memory for the user.
func (s *SQLiteStore) Add(ctx context.Context, userID, sessionID, content string, domains []string) (*Memory, error) {
	m := &Memory{
		ID:        uuid.New().String()[:8],
		UserID:    userID,
		SessionID: sessionID,
		Content:   content,
		Domains:   domains,
		CreatedAt: time.Now(),
	}

	domainsJSON, _ := json.Marshal(m.Domains)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, session_id, content, domains, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.SessionID, m.Content, string(domainsJSON),
		m.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

// Retrieve returns relevant stored context for the query as "- " bullet
// lines, newest-relevant first, capped by a share of the allocator's
// remaining budget. With nothing relevant (or no room at all) it returns
// NoPriorContext.
func (s *SQLiteStore) Retrieve(ctx context.Context, q Query, alloc *budget.Allocator) (string, error) {
	maxTokens := alloc.Remaining() / retrievalShare
	if maxTokens <= 0 {
		return NoPriorContext, nil
	}

	keywords := significantWords(q.Text)

	where := "user_id = ?"
	args := []any{q.UserID}
	if len(keywords) > 0 {
		likes := make([]string, len(keywords))
		for i, kw := range keywords {
			likes[i] = "content LIKE ?"
			args = append(args, "%"+kw+"%")
		}
		where += " AND (" + strings.Join(likes, " OR ") + ")"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, content, domains, created_at
		FROM memories
		WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT 50`, args...)
	if err != nil {
		return "", fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	candidates, err := scanMemories(rows)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return NoPriorContext, nil
	}

	ranked := rank(candidates, keywords, q.Domains)

	var sb strings.Builder
	included := 0
	for _, m := range ranked {
		line := "- " + m.Content + "\n"
		if budget.EstimateTokens(sb.String()+line) > maxTokens {
			break
		}
		sb.WriteString(line)
		included++
	}
	if included == 0 {
		return NoPriorContext, nil
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// rank orders candidates by keyword hits plus a domain-overlap bonus,
// ties broken by recency.
func rank(candidates []Memory, keywords, domains []string) []Memory {
	domainSet := make(map[string]bool, len(domains))
	for _, d := range domains {
		domainSet[strings.ToLower(d)] = true
	}

	score := func(m Memory) int {
		n := 0
		content := strings.ToLower(m.Content)
		for _, kw := range keywords {
			if strings.Contains(content, kw) {
				n++
			}
		}
		for _, d := range m.Domains {
			if domainSet[strings.ToLower(d)] {
				n += domainBonus
				break
			}
		}
		return n
	}

	scored := make([]Memory, len(candidates))
	copy(scored, candidates)
	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := score(scored[i]), score(scored[j])
		if si != sj {
			return si > sj
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})
	return scored
}

// List returns the user's most recent memories.
func (s *SQLiteStore) List(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, content, domains, created_at
		FROM memories
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// Delete removes a memory by id or unique id prefix.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ? OR id LIKE ?", id, id+"%")
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("memory %s not found", id)
	}
	return nil
}

// scanMemories reads memory rows from a query result.
func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		var m Memory
		var domainsJSON, createdAt string
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Content, &domainsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		_ = json.Unmarshal([]byte(domainsJSON), &m.Domains)
		if m.Domains == nil {
			m.Domains = []string{}
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
