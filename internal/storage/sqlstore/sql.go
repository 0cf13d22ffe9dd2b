package sqlstore

// The device keeps a single session row.
const sessionRowID = 1

// Statements stick to the subset sqlite and MySQL share: no upserts, times as RFC3339 text.

const deleteSessionSQL = `DELETE FROM session_state WHERE id = ?`

const insertSessionSQL = `
INSERT INTO session_state
  (id, token, user_id, user_name, user_email, terms_accepted_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
`

const deleteBlockedSQL = `DELETE FROM blocked_users`

const insertBlockedSQL = `
INSERT INTO blocked_users (user_id, position, blocked_at)
VALUES (?, ?, ?)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getSessionSQL = `
SELECT token, user_id, user_name, user_email, terms_accepted_at
FROM session_state
WHERE id = ?
`

const listBlockedSQL = `
SELECT user_id
FROM blocked_users
ORDER BY position ASC
`
