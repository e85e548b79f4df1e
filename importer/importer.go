// Package importer implements the bulk account importer: a line-oriented
// username,password file upserted into the account store at startup.
package importer

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/pogoaccountserver/backend/logging"
	"github.com/pogoaccountserver/backend/store"
)

// Import reads path, upserting each username,password pair into s. A
// missing file is logged as a warning, not a fatal error — the server
// still starts with whatever accounts are already in the store. Lines
// with more than one comma are skipped with a warning.
func Import(ctx context.Context, s store.AccountStore, path string, logger *logging.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("account import file not found, skipping", logging.String("path", path))
			return nil
		}
		logger.Warn("account import file unreadable, skipping",
			logging.String("path", path), logging.String("error", err.Error()))
		return nil
	}
	defer f.Close()

	var pairs []store.CredentialPair
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Count(line, ",") != 1 {
			logger.Warn("skipping malformed account import line",
				logging.Int("line", lineNo), logging.String("content", line))
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		pairs = append(pairs, store.CredentialPair{Username: parts[0], Password: parts[1]})
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("account import read error", logging.String("error", err.Error()))
		return nil
	}

	if len(pairs) == 0 {
		return nil
	}

	if err := s.UpsertMany(ctx, pairs); err != nil {
		return err
	}

	logger.Info("accounts imported", logging.Int("count", len(pairs)))
	return nil
}
