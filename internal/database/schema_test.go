package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()
	content, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+name)
	require.NoError(t, err, "migration %s must be embedded", name)
	return string(content)
}

// Feature: storefront, Property 16: Pending migrations are executed
func TestMigrationFilesExist(t *testing.T) {
	expectedMigrations := []string{
		"00001_create_users_table.sql",
		"00002_create_refresh_tokens_table.sql",
		"00003_create_item_categories_table.sql",
		"00004_create_items_table.sql",
		"00005_create_filter_tables.sql",
		"00006_create_customers_table.sql",
		"00007_create_orders_table.sql",
		"00008_create_reservations_table.sql",
		"00009_create_updated_at_trigger.sql",
		"00010_add_order_fulfillment.sql",
		"00011_create_saved_billing_tables.sql",
	}

	for _, migration := range expectedMigrations {
		readMigration(t, migration)
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	files, err := fs.ReadDir(migrationsFS, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content := readMigration(t, file.Name())
		for _, directive := range []string{
			"-- +goose Up",
			"-- +goose Down",
			"-- +goose StatementBegin",
			"-- +goose StatementEnd",
		} {
			assert.Contains(t, content, directive, "migration %s", file.Name())
		}
	}
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	expectedTables := map[string]string{
		"users":               "00001_create_users_table.sql",
		"refresh_tokens":      "00002_create_refresh_tokens_table.sql",
		"item_categories":     "00003_create_item_categories_table.sql",
		"items":               "00004_create_items_table.sql",
		"filter_categories":   "00005_create_filter_tables.sql",
		"filter_options":      "00005_create_filter_tables.sql",
		"item_filter_options": "00005_create_filter_tables.sql",
		"customers":           "00006_create_customers_table.sql",
		"orders":              "00007_create_orders_table.sql",
		"reservations":        "00008_create_reservations_table.sql",
		"saved_cards":         "00011_create_saved_billing_tables.sql",
		"saved_addresses":     "00011_create_saved_billing_tables.sql",
	}

	for tableName, migrationFile := range expectedTables {
		content := readMigration(t, migrationFile)
		assert.Contains(t, content, "CREATE TABLE IF NOT EXISTS "+tableName+" (")
		assert.Contains(t, content, "DROP TABLE IF EXISTS "+tableName+";")
	}
}

func TestStockAndQuantityCannotGoNegative(t *testing.T) {
	items := readMigration(t, "00004_create_items_table.sql")
	assert.Contains(t, items, "CHECK (stock_quantity >= 0)")

	reservations := readMigration(t, "00008_create_reservations_table.sql")
	assert.Contains(t, reservations, "CHECK (quantity >= 0)")
	assert.Contains(t, reservations, "UNIQUE (order_id, item_id)")
}

func TestOrdersAllowOneOpenOrderPerCustomer(t *testing.T) {
	content := readMigration(t, "00007_create_orders_table.sql")

	assert.Contains(t, content, "ON orders(customer_id) WHERE committed = FALSE")
	assert.Contains(t, content, "reference_code VARCHAR(20)")
}

func TestOrdersTrackFulfillmentAndPendingCheckouts(t *testing.T) {
	content := readMigration(t, "00010_add_order_fulfillment.sql")

	for _, column := range []string{
		"checkout_started_at", "delivered", "received", "refund_requested", "refund_granted", "cancelled",
	} {
		assert.Contains(t, content, "ADD COLUMN IF NOT EXISTS "+column+" ")
		assert.Contains(t, content, "DROP COLUMN IF EXISTS "+column)
	}
	assert.Contains(t, content, "WHERE checkout_pending = TRUE")
}

func TestSavedCardsAreUniquePerSource(t *testing.T) {
	content := readMigration(t, "00011_create_saved_billing_tables.sql")

	assert.Contains(t, content, "UNIQUE (customer_id, source_ref)")
	assert.Contains(t, content, "REFERENCES customers(id) ON DELETE CASCADE")
}

func TestCustomersAreRegisteredOrGuest(t *testing.T) {
	content := readMigration(t, "00006_create_customers_table.sql")

	assert.Contains(t, content, "CREATE SEQUENCE IF NOT EXISTS guest_number_seq")
	assert.Contains(t, content, "(user_id IS NULL) <> (guest_number IS NULL)")
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "store",
		Password: "p@ss",
		Database: "storefront",
		Schema:   "public",
		SSLMode:  "disable",
	})

	assert.Equal(t, "postgres://store:p%40ss@db:5432/storefront?search_path=public&sslmode=disable", dsn)
}
