package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// karmaRow is one node's Karma balance in a snapshot export. ExportID ties
// every row in a single run back to the same export, the way the teacher's
// reconciliation reports stamp each row with a run identifier.
type karmaRow struct {
	ExportID string `parquet:"name=export_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	NodeID   string `parquet:"name=node_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Role     string `parquet:"name=role, type=BYTE_ARRAY, convertedtype=UTF8"`
	Balance  string `parquet:"name=balance, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// runExportKarma snapshots every node's Karma balance as derived from the
// current chain replay and writes it to a Parquet file for external
// analysis (spec §3.1's KarmaBalances, read-only).
func runExportKarma(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("export-karma", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "node data directory")
	out := fs.String("out", "karma.parquet", "output Parquet file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := loadChain(ctx, store, logger)
	if err != nil {
		return err
	}
	state := c.State()

	nodeIDs := make([]string, 0, len(state.NodeMap))
	for id := range state.NodeMap {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	exportID := uuid.NewString()

	file, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(karmaRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("init parquet schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, id := range nodeIDs {
		row := &karmaRow{
			ExportID: exportID,
			NodeID:   id,
			Role:     string(state.GetNodeRole(id)),
			Balance:  state.KarmaBalance(id).String(),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("write row for %s: %w", id, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("flush parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}

	fmt.Printf("Exported %d node balances to %s (export id %s)\n", len(nodeIDs), *out, exportID)
	logger.Info("karma export complete", slog.String("exportId", exportID), slog.Int("rows", len(nodeIDs)))
	return nil
}
