package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a migrated database against what the managers
// expect. It is used at startup and by tests.
type SchemaValidator struct {
	db *sql.DB
}

func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check in order.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"users":             "Accounts and tokens",
		"rooms":             "Rooms and whiteboard logs",
		"room_participants": "Room membership",
		"chat_messages":     "Chat history",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateTableStructure verifies column names and declared types.
func (v *SchemaValidator) ValidateTableStructure() error {
	tables := []struct {
		name    string
		columns map[string]string
	}{
		{"users", map[string]string{
			"id":         "TEXT",
			"username":   "TEXT",
			"user_type":  "TEXT",
			"token":      "TEXT",
			"created_at": "DATETIME",
		}},
		{"rooms", map[string]string{
			"id":              "TEXT",
			"name":            "TEXT",
			"channel_name":    "TEXT",
			"whiteboard_data": "TEXT",
			"created_at":      "DATETIME",
			"updated_at":      "DATETIME",
		}},
		{"room_participants", map[string]string{
			"room_id":   "TEXT",
			"username":  "TEXT",
			"joined_at": "DATETIME",
		}},
		{"chat_messages", map[string]string{
			"id":          "TEXT",
			"room_id":     "TEXT",
			"sender_name": "TEXT",
			"user_type":   "TEXT",
			"content":     "TEXT",
			"created_at":  "DATETIME",
		}},
	}

	for _, table := range tables {
		if err := v.validateColumns(table.name, table.columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table.name, err)
		}
	}
	return nil
}

// ValidateIndexes verifies the lookup indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_rooms_name":              "Room lookup by name",
		"idx_rooms_channel_name":      "Room lookup by channel segment",
		"idx_rooms_updated_at":        "Room listing order",
		"idx_chat_messages_room_time": "Chat history retrieval",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateConstraints probes the foreign key and check constraints with
// inserts that must fail. Nothing is left behind.
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO chat_messages (id, room_id, sender_name, user_type, content)
		VALUES ('constraint-probe', 'no-such-room', 'probe', 'student', 'x')
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM chat_messages WHERE id = 'constraint-probe'")
		return fmt.Errorf("foreign key constraint not enforced: chat_messages.room_id")
	}

	_, err = v.db.Exec(`
		INSERT INTO users (id, username, user_type, token)
		VALUES ('constraint-probe', 'constraint-probe', 'principal', 'constraint-probe')
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM users WHERE id = 'constraint-probe'")
		return fmt.Errorf("check constraint not enforced: users.user_type")
	}
	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue interface{}
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}
	return nil
}
