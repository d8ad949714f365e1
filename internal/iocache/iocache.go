// Package iocache persists computed timelines and the history of runs.
package iocache

import (
	"sync"

	"github.com/protonlab/scantime/internal/contract"
)

// CacheStoreManager manages the timeline cache and the run history stores.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	timeline     contract.CacheStore
	history      contract.HistoryStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// GetTimelineStore returns the timeline CacheStore, or nil when caching is off.
func (mgr *CacheStoreManager) GetTimelineStore() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	if mgr.timeline == nil {
		return nil
	}
	return mgr.timeline
}

// GetHistoryStore returns the run HistoryStore, or nil when tracking is off.
func (mgr *CacheStoreManager) GetHistoryStore() contract.HistoryStore {
	mgr.RLock()
	defer mgr.RUnlock()
	if mgr.history == nil {
		return nil
	}
	return mgr.history
}
