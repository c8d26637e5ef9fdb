package portaldb

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/fitteam/fitlib/internal/models"
)

// PostInput holds the writable fields of a blog post.
type PostInput struct {
	Title       string
	Content     string
	ContentHTML string
	Tags        []string
}

// PostFilter narrows ListPosts. Empty fields are ignored.
type PostFilter struct {
	Tag      string
	AuthorID string
	Query    string
}

const postSelect = `SELECT p.id, p.title, p.content, p.content_html, p.author_id, COALESCE(u.name, ''),
	(SELECT COUNT(*) FROM post_comments c WHERE c.post_id = p.id), p.created_at, p.updated_at
	FROM posts p LEFT JOIN users u ON u.id = p.author_id`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	p := &models.Post{}
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.ContentHTML, &p.AuthorID, &p.AuthorName, &p.Comments, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// normalizeTags lowercases, trims and de-duplicates tags, sorted.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.TrimPrefix(t, "#")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// CreatePost inserts a post and its tags in one transaction.
func (db *DB) CreatePost(in PostInput, authorID string) (*models.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title is required")
	}
	id := mustID("b_")
	now := db.now()

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO posts (id, title, content, content_html, author_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, in.Title, in.Content, in.ContentHTML, authorID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	if err := replaceTags(tx, id, in.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetPost(id)
}

func replaceTags(tx *sql.Tx, postID string, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM post_tags WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, t := range normalizeTags(tags) {
		if _, err := tx.Exec(`INSERT INTO post_tags (post_id, tag) VALUES (?, ?)`, postID, t); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

func (db *DB) loadTags(posts ...*models.Post) error {
	for _, p := range posts {
		rows, err := db.conn.Query(`SELECT tag FROM post_tags WHERE post_id = ? ORDER BY tag`, p.ID)
		if err != nil {
			return fmt.Errorf("load tags: %w", err)
		}
		p.Tags = []string{}
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				rows.Close()
				return fmt.Errorf("scan tag: %w", err)
			}
			p.Tags = append(p.Tags, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("load tags: iterate: %w", err)
		}
	}
	return nil
}

// GetPost returns a post with its tags, or nil if not found.
func (db *DB) GetPost(id string) (*models.Post, error) {
	p, err := scanPost(db.conn.QueryRow(postSelect+` WHERE p.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if err := db.loadTags(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPosts returns posts newest first.
func (db *DB) ListPosts(f PostFilter, limit int, cursor string) (*PaginatedResult[*models.Post], error) {
	var conditions []string
	var args []any
	if tag := strings.ToLower(strings.TrimSpace(f.Tag)); tag != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM post_tags t WHERE t.post_id = p.id AND t.tag = ?)")
		args = append(args, strings.TrimPrefix(tag, "#"))
	}
	if f.AuthorID != "" {
		conditions = append(conditions, "p.author_id = ?")
		args = append(args, f.AuthorID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		conditions = append(conditions, "(p.title LIKE ? OR p.content LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	query := postSelect + where(conditions) + ` ORDER BY p.created_at DESC, p.id DESC`
	res, err := paginatedQuery(db.conn, query, args, limit, cursor, func(rows *sql.Rows) (*models.Post, error) {
		return scanPost(rows)
	})
	if err != nil {
		return nil, err
	}
	if err := db.loadTags(res.Data...); err != nil {
		return nil, err
	}
	return res, nil
}

// UpdatePost replaces a post's writable fields and tags.
func (db *DB) UpdatePost(id string, in PostInput) (*models.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title cannot be empty")
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE posts SET title = ?, content = ?, content_html = ?, updated_at = ? WHERE id = ?`,
		in.Title, in.Content, in.ContentHTML, db.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	if err := replaceTags(tx, id, in.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetPost(id)
}

// DeletePost removes a post with its tags and comments.
func (db *DB) DeletePost(id string) error {
	return db.deleteByID("posts", "post", id)
}

// AddComment adds a comment to a post.
func (db *DB) AddComment(postID, authorID, body string) (*models.PostComment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("comment body is required")
	}
	var exists int
	if err := db.conn.QueryRow(`SELECT 1 FROM posts WHERE id = ?`, postID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
		}
		return nil, fmt.Errorf("check post: %w", err)
	}
	id := mustID("c_")
	now := db.now()
	if _, err := db.conn.Exec(
		`INSERT INTO post_comments (id, post_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, postID, authorID, body, now,
	); err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return db.GetComment(id)
}

const commentSelect = `SELECT c.id, c.post_id, c.author_id, COALESCE(u.name, ''), c.body, c.created_at
	FROM post_comments c LEFT JOIN users u ON u.id = c.author_id`

// GetComment returns a comment by ID, or nil if not found.
func (db *DB) GetComment(id string) (*models.PostComment, error) {
	c := &models.PostComment{}
	err := db.conn.QueryRow(commentSelect+` WHERE c.id = ?`, id).
		Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// ListComments returns a post's comments oldest first.
func (db *DB) ListComments(postID string) ([]*models.PostComment, error) {
	rows, err := db.conn.Query(commentSelect+` WHERE c.post_id = ? ORDER BY c.created_at, c.id`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := []*models.PostComment{}
	for rows.Next() {
		c := &models.PostComment{}
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list comments: iterate: %w", err)
	}
	return out, nil
}

// DeleteComment removes a comment.
func (db *DB) DeleteComment(id string) error {
	return db.deleteByID("post_comments", "comment", id)
}
