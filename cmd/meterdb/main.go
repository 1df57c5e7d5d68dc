// meterdb
// Read-only command-line access to a Bridge's SQLite database
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	limit   int
	rootCmd = &cobra.Command{
		Use:   "meterdb",
		Short: "meter-bridge database CLI",
		Long:  "Read-only inspection of a Bridge's lorawan_nodes/users/buffered_messages/cached_messages tables.",
	}

	nodesCmd = &cobra.Command{
		Use:   "nodes",
		Short: "List registered LoRaWAN nodes",
		RunE:  listNodes,
	}

	channelsCmd = &cobra.Command{
		Use:   "channels",
		Short: "List channel state rows",
		RunE:  listChannels,
	}

	bufferedCmd = &cobra.Command{
		Use:   "buffered",
		Short: "List buffered (undelivered) messages",
		RunE:  listBuffered,
	}

	pendingCmd = &cobra.Command{
		Use:   "pending",
		Short: "List pending tunnelled requests awaiting redispatch",
		RunE:  listPending,
	}

	cachedCmd = &cobra.Command{
		Use:   "messages [channel-id]",
		Short: "List indexed channel messages",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listCached,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show row counts across every table",
		RunE:  showStats,
	}

	queryCmd = &cobra.Command{
		Use:   "query [sql]",
		Short: "Execute a raw read-only SQL query",
		Args:  cobra.ExactArgs(1),
		RunE:  executeQuery,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "/var/lib/meter-bridge/bridge.db", "Database file path")
	rootCmd.PersistentFlags().IntVarP(&limit, "limit", "n", 50, "Maximum number of rows to show")

	rootCmd.AddCommand(nodesCmd, channelsCmd, bufferedCmd, pendingCmd, cachedCmd, statsCmd, queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDB opens the database read-only; meterdb never writes, matching the
// explorer's own read-only DAO contract.
func openDB() (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath+"?mode=ro")
}

func listNodes(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT dev_eui, channel_id, created_at FROM lorawan_nodes ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEV EUI\tCHANNEL ID\tCREATED")
	fmt.Fprintln(w, "-------\t----------\t-------")
	for rows.Next() {
		var devEUI, channelID string
		var createdAt time.Time
		if err := rows.Scan(&devEUI, &channelID, &createdAt); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", devEUI, channelID, createdAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func listChannels(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT channel_id, init_count, length(state_blob), updated_at FROM users ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL ID\tINIT COUNT\tSTATE BYTES\tUPDATED")
	fmt.Fprintln(w, "----------\t----------\t-----------\t-------")
	for rows.Next() {
		var channelID string
		var initCount, stateBytes int
		var updatedAt time.Time
		if err := rows.Scan(&channelID, &initCount, &stateBytes, &updatedAt); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", channelID, initCount, stateBytes, updatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func listBuffered(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT id, channel_id, length(wire_bytes), arrived_at, retry_count FROM buffered_messages ORDER BY arrived_at ASC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHANNEL ID\tBYTES\tARRIVED\tRETRIES")
	fmt.Fprintln(w, "--\t----------\t-----\t-------\t-------")
	for rows.Next() {
		var id, wireBytes, retryCount int
		var channelID string
		var arrivedAt time.Time
		if err := rows.Scan(&id, &channelID, &wireBytes, &arrivedAt, &retryCount); err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\n", id, channelID, wireBytes, arrivedAt.Format("2006-01-02 15:04:05"), retryCount)
	}
	return w.Flush()
}

func listPending(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT dev_eui, length(request_bytes), received_at FROM pending_requests ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEV EUI\tBYTES\tRECEIVED")
	fmt.Fprintln(w, "-------\t-----\t--------")
	for rows.Next() {
		var devEUI string
		var requestBytes int
		var receivedAt time.Time
		if err := rows.Scan(&devEUI, &requestBytes, &receivedAt); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", devEUI, requestBytes, receivedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func listCached(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	var query string
	var queryArgs []interface{}
	if len(args) > 0 {
		query = `SELECT message_id, channel_id, length(wire_bytes), indexed_at FROM cached_messages WHERE channel_id = ? ORDER BY indexed_at ASC LIMIT ?`
		queryArgs = []interface{}{args[0], limit}
	} else {
		query = `SELECT message_id, channel_id, length(wire_bytes), indexed_at FROM cached_messages ORDER BY indexed_at DESC LIMIT ?`
		queryArgs = []interface{}{limit}
	}

	rows, err := db.Query(query, queryArgs...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE ID\tCHANNEL ID\tBYTES\tINDEXED")
	fmt.Fprintln(w, "----------\t----------\t-----\t-------")
	for rows.Next() {
		var messageID, channelID string
		var wireBytes int
		var indexedAt time.Time
		if err := rows.Scan(&messageID, &channelID, &wireBytes, &indexedAt); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", messageID, channelID, wireBytes, indexedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("meter-bridge database statistics")
	fmt.Println("================================")

	tables := []string{"lorawan_nodes", "users", "buffered_messages", "pending_requests", "cached_messages"}
	for _, table := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		fmt.Printf("%-20s %d\n", table+":", count)
	}
	return nil
}

func executeQuery(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query := args[0]
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return fmt.Errorf("only SELECT queries are allowed")
	}

	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	fmt.Fprintln(w, strings.Repeat("-\t", len(cols)))

	values := make([]interface{}, len(cols))
	valuePtrs := make([]interface{}, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}
		var row []string
		for _, v := range values {
			switch val := v.(type) {
			case nil:
				row = append(row, "NULL")
			case []byte:
				row = append(row, string(val))
			default:
				row = append(row, fmt.Sprintf("%v", val))
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}
