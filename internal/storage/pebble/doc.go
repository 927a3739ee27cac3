// Package pebblestore wraps the single Pebble instance behind warden's table
// store and event queue. It owns the fsync policy, batch commits, range
// deletes, the metrics hook and disk usage reporting.
//
// Tables share the keyspace; internal/localdb and internal/queue prefix their
// keys so that each table is a contiguous range.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: config.StoreDir(dataDir),
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set(key, value, nil)
//	err = db.CommitBatch(ctx, b)
//	b.Close()
package pebblestore
