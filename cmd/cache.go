package cmd

import (
	"errors"
	"fmt"

	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/iocache"
	"github.com/protonlab/scantime/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheSetup opens only the timeline cache; no plan is read and history stays off.
func cacheSetup(_ *cobra.Command, _ []string) error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	connStr := viper.GetString("cache-db-connect")

	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	if err := iocache.InitCaching(backend, connStr, schema.NoneBackend, ""); err != nil {
		return fmt.Errorf("open timeline cache: %w", err)
	}

	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr

	return nil
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the timeline cache (skips recomputing unchanged plans)",
	Long: `Manage the cache of computed plan timelines.

Scantime keys each timeline by the plan content, the machine limits, the spot
encoding and the doserate table, so a repeated run on an unchanged plan is served
from the cache. Entries expire after 30 days.

Backends: sqlite (default, ~/.scantime_cache.db), mysql, postgresql, none.

Replacing a doserate table in place keeps its path but changes its digest, so old
entries simply stop matching. Run "scantime cache clear" to reclaim the space.`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached timelines",
	Long: `Delete all cached timelines from the configured backend.

The sqlite backend removes its database file. The mysql and postgresql backends
drop the timeline_cache table.

  SCANTIME_CACHE_BACKEND=postgresql SCANTIME_CACHE_DB_CONNECT="postgres://..." scantime cache clear`,
	PreRunE: cacheSetup,
	Run: func(_ *cobra.Command, _ []string) {
		iocache.CloseCaching()
		if err := iocache.ClearCache(cfg.CacheBackend, iocache.GetDBFilePath(), cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Cannot clear timeline cache", err)
		}
		fmt.Println("Timeline cache cleared.")
	},
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show detailed information about the timeline cache.

Prints the backend, whether it is reachable, the number of cached timelines,
the age range of the entries and the size of the cache table.`,
	PreRunE: cacheSetup,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetTimelineStore()
		if store == nil {
			contract.LogFatal("Cannot read cache status", errors.New("caching is disabled (cache-backend is none)"))
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Cannot read cache status", err)
		}
		iocache.PrintCacheStatus(status)
	},
}
